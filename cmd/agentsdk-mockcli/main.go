// Command agentsdk-mockcli is a scriptable fake backend CLI, spawned by
// pkg/testharness in place of the real `claude` binary so runtime tests
// can exercise pkg/transport/pkg/router/pkg/control/pkg/client against a
// real subprocess without depending on the external backend (spec §2
// budget item "test support (mock backend replayer)").
//
// The script to replay is read from the path named by the
// AGENTSDK_MOCKCLI_SCRIPT environment variable; any real CLI flags
// (--output-format, --max-turns, ...) the host passes on argv are
// accepted and ignored, since this binary only cares about the script.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/freitascorp/agentsdk/pkg/testharness"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "agentsdk-mockcli:", err)
		os.Exit(1)
	}
}

func run() error {
	scriptPath := os.Getenv("AGENTSDK_MOCKCLI_SCRIPT")
	if scriptPath == "" {
		return fmt.Errorf("AGENTSDK_MOCKCLI_SCRIPT not set")
	}
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return err
	}
	var script testharness.Script
	if err := json.Unmarshal(data, &script); err != nil {
		return err
	}

	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	results := map[string]json.RawMessage{}

	for _, step := range script.Steps {
		if err := execStep(step, in, out, results); err != nil {
			return err
		}
	}

	if resultPath := os.Getenv("AGENTSDK_MOCKCLI_RESULT"); resultPath != "" {
		b, _ := json.Marshal(results)
		if err := os.WriteFile(resultPath, b, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func execStep(step testharness.Step, in *bufio.Scanner, out *bufio.Writer, results map[string]json.RawMessage) error {
	switch step.Type {
	case "emit":
		return writeLine(out, step.Line)

	case "expect_request":
		line, err := nextControlRequest(in, step.Subtype)
		if err != nil {
			return err
		}
		id := gjson.GetBytes(line, "request_id").String()
		return writeSuccessResponse(out, id, step.Respond)

	case "expect_request_error":
		line, err := nextControlRequest(in, step.Subtype)
		if err != nil {
			return err
		}
		id := gjson.GetBytes(line, "request_id").String()
		return writeErrorResponse(out, id, step.Error)

	case "send_request":
		body := step.Body
		if len(body) == 0 {
			body = []byte(`{}`)
		}
		merged, err := sjson.SetBytes(body, "subtype", step.Subtype)
		if err != nil {
			return err
		}
		env, err := sjson.SetBytes([]byte(`{"type":"control_request"}`), "request_id", step.ID)
		if err != nil {
			return err
		}
		env, err = sjson.SetRawBytes(env, "request", merged)
		if err != nil {
			return err
		}
		return writeLine(out, env)

	case "expect_response":
		for {
			if !in.Scan() {
				return fmt.Errorf("expect_response %s: stdin closed", step.ID)
			}
			line := in.Bytes()
			if len(line) == 0 {
				continue
			}
			if gjson.GetBytes(line, "type").String() != "control_response" {
				continue
			}
			respID := gjson.GetBytes(line, "response.request_id").String()
			if respID != step.ID {
				continue
			}
			results[step.RecordKey] = json.RawMessage(gjson.GetBytes(line, "response").Raw)
			return nil
		}

	case "expect_user_message":
		for {
			if !in.Scan() {
				return fmt.Errorf("expect_user_message: stdin closed")
			}
			line := in.Bytes()
			if len(line) == 0 {
				continue
			}
			typ := gjson.GetBytes(line, "type").String()
			if typ == "control_request" || typ == "control_response" {
				continue
			}
			return nil
		}

	default:
		return fmt.Errorf("unknown step type: %s", step.Type)
	}
}

func nextControlRequest(in *bufio.Scanner, subtype string) ([]byte, error) {
	for {
		if !in.Scan() {
			return nil, fmt.Errorf("expect_request %s: stdin closed", subtype)
		}
		line := in.Bytes()
		if len(line) == 0 {
			continue
		}
		if gjson.GetBytes(line, "type").String() != "control_request" {
			continue
		}
		if subtype != "" && gjson.GetBytes(line, "request.subtype").String() != subtype {
			continue
		}
		return append([]byte(nil), line...), nil
	}
}

// writeSuccessResponse replies with a control_response whose data fields
// are flattened directly into the response object (spec.md:49), matching
// how the real backend CLI and pkg/wire.ControlResponse both shape a
// success reply.
func writeSuccessResponse(out *bufio.Writer, requestID string, data json.RawMessage) error {
	env := []byte(`{"type":"control_response","response":{"subtype":"success"}}`)
	env, err := sjson.SetBytes(env, "response.request_id", requestID)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		var flattenErr error
		gjson.ParseBytes(data).ForEach(func(key, value gjson.Result) bool {
			env, flattenErr = sjson.SetRawBytes(env, "response."+key.String(), []byte(value.Raw))
			return flattenErr == nil
		})
		if flattenErr != nil {
			return flattenErr
		}
	}
	return writeLine(out, env)
}

func writeErrorResponse(out *bufio.Writer, requestID, reason string) error {
	env := []byte(`{"type":"control_response","response":{"subtype":"error"}}`)
	env, err := sjson.SetBytes(env, "response.request_id", requestID)
	if err != nil {
		return err
	}
	env, err = sjson.SetBytes(env, "response.error", reason)
	if err != nil {
		return err
	}
	return writeLine(out, env)
}

func writeLine(out *bufio.Writer, line json.RawMessage) error {
	if _, err := out.Write(line); err != nil {
		return err
	}
	if err := out.WriteByte('\n'); err != nil {
		return err
	}
	return out.Flush()
}
