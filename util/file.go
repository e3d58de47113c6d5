package util

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const maxConfigFileSize = 10 * 1024 * 1024

// WriteBytes writes bs to file through a temp file and a rename, creating parent directories if required.
// perm is applied to the temp file before the content is written.
func WriteBytes(ctx context.Context, file string, bs []byte, perm os.FileMode) error {
	if ctx.Err() != nil {
		return fmt.Errorf("write bytes start: %w", ctx.Err())
	}

	dir, name, err := prepareFileDir(file)
	if err != nil {
		return fmt.Errorf("prepare dir: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, ".*"+name)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() {
		if _, err := os.Stat(tempFileName); err == nil {
			_ = os.Remove(tempFileName)
		}
	}()

	if err := tempFile.Chmod(perm); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("set temp file permissions: %w", err)
	}

	if _, err := tempFile.Write(bs); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tempFileName, err)
	}

	if ctx.Err() != nil {
		return fmt.Errorf("after temp file: %w", ctx.Err())
	}

	if err := os.Rename(tempFileName, file); err != nil {
		return fmt.Errorf("move %s to %s: %w", tempFileName, file, err)
	}
	return nil
}

// WriteJson writes obj pretty-formatted to file with owner only permissions
func WriteJson(ctx context.Context, file string, obj interface{}) error {
	bs, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return WriteBytes(ctx, file, bs, 0600)
}

// ReadJson reads JSON config file and maps to a provided interface
func ReadJson(file string, res interface{}) (interface{}, error) {
	bs, err := readLimited(file)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(bs, &res); err != nil {
		return nil, err
	}
	return res, nil
}

// ReadJsonWithEnvSub reads JSON config file substituting {{ .VAR }} references with environment variables
func ReadJsonWithEnvSub(file string, res interface{}) (interface{}, error) {
	bs, err := readLimited(file)
	if err != nil {
		return nil, err
	}

	t, err := template.New("").Option("missingkey=zero").Parse(string(bs))
	if err != nil {
		return nil, fmt.Errorf("error parsing template: %v", err)
	}

	var output bytes.Buffer
	if err := t.Execute(&output, getEnvMap()); err != nil {
		return nil, fmt.Errorf("error executing template: %v", err)
	}

	if err := json.Unmarshal(output.Bytes(), &res); err != nil {
		return nil, fmt.Errorf("failed parsing Json file after template was executed, err: %v", err)
	}
	return res, nil
}

func readLimited(file string) ([]byte, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bs, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	if len(bs) > maxConfigFileSize {
		return nil, fmt.Errorf("%s too large: maximum size is %d bytes", file, maxConfigFileSize)
	}
	return bs, nil
}

// getEnvMap converts the output of os.Environ() to a map
func getEnvMap() map[string]string {
	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok && key != "" {
			envMap[key] = value
		}
	}
	return envMap
}

func prepareFileDir(file string) (string, string, error) {
	dir, name := filepath.Split(file)
	if dir == "" {
		return ".", name, nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", "", err
	}
	return dir, name, nil
}
