package pipeline

import "fmt"

// preprocessError indicates the request's input could not be shaped for the
// model. It is raised before any backend time is spent.
type preprocessError struct{ msg string }

func (e preprocessError) Error() string { return "preprocess: " + e.msg }

func errPreprocessf(format string, args ...any) error {
	return preprocessError{msg: fmt.Sprintf(format, args...)}
}

// IsPreprocess reports whether err came from the preprocessing stage.
func IsPreprocess(err error) bool {
	_, ok := err.(preprocessError)
	return ok
}

// postprocessError indicates raw backend output could not be interpreted
// for the model's task type.
type postprocessError struct{ msg string }

func (e postprocessError) Error() string { return "postprocess: " + e.msg }

func errPostprocessf(format string, args ...any) error {
	return postprocessError{msg: fmt.Sprintf(format, args...)}
}

// IsPostprocess reports whether err came from the postprocessing stage.
func IsPostprocess(err error) bool {
	_, ok := err.(postprocessError)
	return ok
}
