package main

import (
	"testing"

	"inferd/internal/config"
)

func TestMergeFileConfigRespectsExplicitFlags(t *testing.T) {
	addr, manifest := ":8080", ""
	maxBatch, maxQueue := 0, 0
	var timeoutMS int64
	gpu := false
	fileCfg := config.Config{Addr: ":9999", MaxBatchSize: 7, GPUEnabled: true}

	// -addr :8080 and -gpu=false were passed explicitly, even though they
	// equal the built-in defaults.
	mergeFileConfig(map[string]bool{"addr": true, "gpu": true}, fileCfg,
		&addr, &manifest, &maxBatch, &maxQueue, &timeoutMS, &gpu)

	if addr != ":8080" {
		t.Fatalf("explicit -addr must win over the file, got %q", addr)
	}
	if gpu {
		t.Fatalf("explicit -gpu=false must win over the file")
	}
	if maxBatch != 7 {
		t.Fatalf("unset flag should take the file value, got %d", maxBatch)
	}
}

func TestMergeFileConfigFillsUnsetFlags(t *testing.T) {
	addr, manifest := ":8080", ""
	maxBatch, maxQueue := 0, 0
	var timeoutMS int64
	gpu := false
	fileCfg := config.Config{
		Addr:             ":7070",
		ManifestPath:     "models.yaml",
		MaxBatchSize:     3,
		MaxQueueDepth:    16,
		DefaultTimeoutMS: 2500,
		GPUEnabled:       true,
	}

	mergeFileConfig(map[string]bool{}, fileCfg,
		&addr, &manifest, &maxBatch, &maxQueue, &timeoutMS, &gpu)

	if addr != ":7070" || manifest != "models.yaml" {
		t.Fatalf("file values not applied: addr=%q manifest=%q", addr, manifest)
	}
	if maxBatch != 3 || maxQueue != 16 || timeoutMS != 2500 || !gpu {
		t.Fatalf("file values not applied: batch=%d queue=%d timeout=%d gpu=%v",
			maxBatch, maxQueue, timeoutMS, gpu)
	}
}

func TestMergeFileConfigKeepsDefaultsWhenFileIsEmpty(t *testing.T) {
	addr, manifest := ":8080", ""
	maxBatch, maxQueue := 0, 0
	var timeoutMS int64
	gpu := false

	mergeFileConfig(map[string]bool{}, config.Config{},
		&addr, &manifest, &maxBatch, &maxQueue, &timeoutMS, &gpu)

	if addr != ":8080" || manifest != "" || maxBatch != 0 || maxQueue != 0 || timeoutMS != 0 || gpu {
		t.Fatalf("empty file must leave defaults untouched")
	}
}
