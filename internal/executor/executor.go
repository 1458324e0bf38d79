// Package executor runs one user script in a subprocess. The engine never
// introspects the script: the source is concatenated with a small Python
// trailer that calls main(source_path) and reports produced paths through a
// JSON manifest, so the subprocess boundary is the only protocol.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tagpipe-io/tagpipe/internal/fileutil"
)

// wrapperTrailer is appended to every user script. At run time it calls the
// script's main() entrypoint with SOURCE_PATH and writes the produced paths
// to OUTPUT_MANIFEST. main may return nothing, a single path, or a sequence
// of paths; paths that do not exist are reported on stderr and skipped.
const wrapperTrailer = `
if __name__ == "__main__":
    import os
    import sys
    import json
    from pathlib import Path

    source_path = Path(os.environ["SOURCE_PATH"])
    manifest_path = Path(os.environ["OUTPUT_MANIFEST"])

    result = main(source_path)

    if result is None:
        output_paths = []
    elif isinstance(result, (list, tuple)):
        output_paths = list(result)
    else:
        output_paths = [result]

    valid_outputs = []
    for output_path in output_paths:
        output_path = Path(output_path)
        if not output_path.exists():
            print(f"Warning: output path {output_path} does not exist", file=sys.stderr)
            continue
        valid_outputs.append(str(output_path.absolute()))

    with open(manifest_path, "w") as f:
        json.dump({"outputs": valid_outputs}, f)
`

// Executor stages inputs, runs wrapped scripts and harvests their outputs.
// It is stateless across runs; concurrent runs never share directories.
type Executor struct {
	interpreter string
	outputDir   string
	logger      *slog.Logger
}

// Config configures an Executor.
type Config struct {
	// Interpreter is the command that runs wrapped scripts, e.g. "python3".
	Interpreter string
	// OutputDir is the staging root. Every run gets a private subdirectory
	// beneath it.
	OutputDir string
	Logger    *slog.Logger
}

// New creates an Executor.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		interpreter: cfg.Interpreter,
		outputDir:   cfg.OutputDir,
		logger:      logger,
	}
}

// Result is the outcome of one script run.
type Result struct {
	// Outputs are absolute paths inside RunDir, in the order the script
	// returned them. On failure it holds the single error-log artifact.
	Outputs []string
	// RunDir is the private output directory of this run. The caller removes
	// it once the outputs are ingested.
	RunDir string
	// Success is false when the process exited non-zero or could not run.
	Success bool
	// ExitCode is the subprocess exit code; -1 when it never started.
	ExitCode int
	// Message describes the failure. Empty on success.
	Message string
}

type manifest struct {
	Outputs []string `json:"outputs"`
}

// Run executes the script source against the input file. The input is copied
// into a fresh work directory under its display name so the script sees the
// natural filename. Work files are removed before Run returns; the run's
// output directory is handed to the caller through the Result.
func (e *Executor) Run(ctx context.Context, scriptSource, inputPath, displayName string) (*Result, error) {
	runID := uuid.New().String()

	// Absolute so manifest paths compare cleanly during harvest.
	runDir, err := filepath.Abs(filepath.Join(e.outputDir, "run_"+runID))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve run directory: %w", err)
	}
	if err := fileutil.EnsureDir(runDir); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "tagpipe_exec_")
	if err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	stagedInput := filepath.Join(workDir, filepath.Base(displayName))
	if err := fileutil.CopyFile(inputPath, stagedInput); err != nil {
		return nil, fmt.Errorf("failed to stage input file: %w", err)
	}

	wrappedPath := filepath.Join(workDir, fmt.Sprintf("wrapped_%s.py", runID))
	if err := os.WriteFile(wrappedPath, []byte(scriptSource+"\n"+wrapperTrailer), 0640); err != nil {
		return nil, fmt.Errorf("failed to write wrapped script: %w", err)
	}

	manifestPath := filepath.Join(workDir, "output_manifest.json")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.interpreter, wrappedPath)
	cmd.Dir = workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"SOURCE_PATH="+stagedInput,
		"OUTPUT_MANIFEST="+manifestPath,
	)

	runErr := cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil {
		return e.failureResult(runDir, exitCode, runErr, stdout.Bytes(), stderr.Bytes())
	}

	outputs, err := e.harvest(manifestPath, runDir)
	if err != nil {
		return e.failureResult(runDir, exitCode, err, stdout.Bytes(), stderr.Bytes())
	}

	return &Result{
		Outputs:  outputs,
		RunDir:   runDir,
		Success:  true,
		ExitCode: exitCode,
	}, nil
}

// harvest reads the manifest and copies each existing output into the run
// directory, preserving order. A missing manifest means the script produced
// no outputs.
func (e *Executor) harvest(manifestPath, runDir string) ([]string, error) {
	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read output manifest: %w", err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse output manifest: %w", err)
	}

	var outputs []string
	for _, src := range m.Outputs {
		if !fileutil.FileExists(src) {
			e.logger.Warn("manifest output missing, skipping", "path", src)
			continue
		}
		dst := filepath.Join(runDir, filepath.Base(src))
		if filepath.Dir(src) == runDir {
			outputs = append(outputs, src)
			continue
		}
		if err := fileutil.CopyFile(src, dst); err != nil {
			return nil, err
		}
		outputs = append(outputs, dst)
	}
	return outputs, nil
}

// failureResult writes the synthetic error-log artifact and wraps it in a
// failed Result. The artifact flows through ingestion like a normal output.
func (e *Executor) failureResult(runDir string, exitCode int, cause error, stdout, stderr []byte) (*Result, error) {
	logName := fmt.Sprintf("error_%s.log", uuid.New().String())
	logPath := filepath.Join(runDir, logName)

	content := fmt.Sprintf("Exit code: %d\nError: %v\n\nSTDOUT:\n%s\n\nSTDERR:\n%s\n",
		exitCode, cause, stdout, stderr)
	if err := os.WriteFile(logPath, []byte(content), 0640); err != nil {
		return nil, fmt.Errorf("failed to write error log: %w", err)
	}

	return &Result{
		Outputs:  []string{logPath},
		RunDir:   runDir,
		Success:  false,
		ExitCode: exitCode,
		Message:  fmt.Sprintf("script failed with exit code %d: %v", exitCode, cause),
	}, nil
}
