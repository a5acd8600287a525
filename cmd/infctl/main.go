package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"inferd/pkg/types"
)

// infctl is a thin HTTP client for a running inferd daemon.

var (
	serverAddr string
	httpClient = &http.Client{Timeout: 5 * time.Minute}
)

func main() {
	root := &cobra.Command{
		Use:           "infctl",
		Short:         "Control a running inferd daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "addr", envStr("INFERD_ADDR", "http://127.0.0.1:8080"), "inferd base URL")

	root.AddCommand(modelsCmd(), inferCmd(), statusCmd(), metricsCmd(), cancelCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func modelsCmd() *cobra.Command {
	var modality, specialty string
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if modality != "" {
				q.Set("modality", modality)
			}
			if specialty != "" {
				q.Set("specialty", specialty)
			}
			path := "/models"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}
			return getJSON(path)
		},
	}
	list.Flags().StringVar(&modality, "modality", "", "Filter by imaging modality")
	list.Flags().StringVar(&specialty, "specialty", "", "Filter by clinical specialty")

	var modelFile string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a model from a JSON descriptor file",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(modelFile)
			if err != nil {
				return err
			}
			return postJSON("/models", b)
		},
	}
	register.Flags().StringVar(&modelFile, "file", "", "Path to model descriptor JSON")
	_ = register.MarkFlagRequired("file")

	var weightsPath string
	load := &cobra.Command{
		Use:   "load <model-id>",
		Short: "Attach weights to a registered model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(types.LoadModelRequest{WeightsPath: weightsPath})
			return postJSON("/models/"+url.PathEscape(args[0])+"/load", body)
		},
	}
	load.Flags().StringVar(&weightsPath, "weights", "", "Path to a raw float32 weights file on the daemon host")

	models := &cobra.Command{
		Use:   "models",
		Short: "Manage the model registry",
	}
	models.AddCommand(list, register, load)
	return models
}

func inferCmd() *cobra.Command {
	var (
		inputFile string
		priority  string
		timeoutMS int64
		explain   bool
	)
	cmd := &cobra.Command{
		Use:   "infer <model-id>",
		Short: "Submit an inference request and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := os.ReadFile(inputFile)
			if err != nil {
				return err
			}
			var input types.InputData
			if err := json.Unmarshal(b, &input); err != nil {
				return fmt.Errorf("parse input file: %w", err)
			}
			body, _ := json.Marshal(types.InferAPIRequest{
				Model:     args[0],
				Input:     input,
				Priority:  priority,
				TimeoutMS: timeoutMS,
				Explain:   explain,
			})
			return postJSON("/infer", body)
		},
	}
	cmd.Flags().StringVar(&inputFile, "input", "", "Path to an input JSON file (pixel buffer plus preprocessing options)")
	cmd.Flags().StringVar(&priority, "priority", "", "Scheduling priority: low, normal, high, urgent")
	cmd.Flags().Int64Var(&timeoutMS, "timeout-ms", 0, "Per-request timeout in ms (0 uses the daemon default)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Request an explanation when the model supports one")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/status")
		},
	}
}

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show aggregate inference metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/metrics.json")
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <request-id>",
		Short: "Cancel a queued or running request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := http.NewRequest(http.MethodDelete, serverAddr+"/requests/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			return doAndPrint(req)
		},
	}
}

func getJSON(path string) error {
	req, err := http.NewRequest(http.MethodGet, serverAddr+path, nil)
	if err != nil {
		return err
	}
	return doAndPrint(req)
}

func postJSON(path string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, serverAddr+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doAndPrint(req)
}

// doAndPrint executes the request and pretty-prints the JSON response.
// Non-2xx responses are reported as errors with the server's message.
func doAndPrint(req *http.Request) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr types.ErrorResponse
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(b))
	}
	if len(bytes.TrimSpace(b)) == 0 {
		fmt.Println("ok")
		return nil
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, b, "", "  "); err != nil {
		fmt.Println(string(b))
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
