// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/firestorm-community/lslbridge/lib/ref"
)

// ScriptUploader pushes LSL source into a script item living inside a
// rezzed object, via the task-inventory update capability. The upload
// is two-stage: the capability returns a one-shot uploader URL, and
// the script text goes to that URL.
type ScriptUploader struct {
	// CapabilityURL is the region's UpdateScriptTask capability.
	CapabilityURL string

	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (u *ScriptUploader) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

func (u *ScriptUploader) httpClient() *http.Client {
	if u.HTTPClient != nil {
		return u.HTTPClient
	}
	return http.DefaultClient
}

// Upload compiles-and-installs script source into the item inside the
// task (the rezzed object). The script is set running. Returns the
// new asset ID reported by the grid.
func (u *ScriptUploader) Upload(ctx context.Context, task ref.ObjectID, item ref.ItemID, source string) (string, error) {
	if u.CapabilityURL == "" {
		return "", fmt.Errorf("transport: no script upload capability")
	}

	stage1, err := encodeLLSDMap(map[string]any{
		"task_id":           task.String(),
		"item_id":           item.String(),
		"is_script_running": true,
		"target":            "mono",
	})
	if err != nil {
		return "", err
	}
	fields, err := u.post(ctx, u.CapabilityURL, llsdContentType, stage1)
	if err != nil {
		return "", fmt.Errorf("transport: requesting uploader: %w", err)
	}
	if state := fields["state"]; state != "upload" {
		return "", fmt.Errorf("transport: capability refused upload: state %q, message %q", state, fields["message"])
	}
	uploaderURL := fields["uploader"]
	if uploaderURL == "" {
		return "", fmt.Errorf("transport: capability returned no uploader URL")
	}

	fields, err = u.post(ctx, uploaderURL, "text/plain", []byte(source))
	if err != nil {
		return "", fmt.Errorf("transport: uploading script body: %w", err)
	}
	if state := fields["state"]; state != "complete" {
		return "", fmt.Errorf("transport: upload did not complete: state %q, message %q", state, fields["message"])
	}
	u.logger().Debug("script uploaded", "task", task, "item", item, "asset", fields["new_asset"])
	return fields["new_asset"], nil
}

func (u *ScriptUploader) post(ctx context.Context, url, contentType string, body []byte) (map[string]string, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	request.Header.Set("Content-Type", contentType)

	response, err := u.httpClient().Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: response.StatusCode,
			Status:     response.Status,
			Body:       string(data),
		}
	}
	return decodeLLSDMap(data)
}
