// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/firestorm-community/lslbridge/lib/ref"
)

func TestClientPostRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/llsd+xml" {
			t.Errorf("content type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		command, err := decodeLLSDString(body)
		if err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if command != "<clientAO state=on>" {
			t.Errorf("command = %q", command)
		}
		w.Write(encodeLLSDString("ok"))
	}))
	defer server.Close()

	client := &Client{}
	reply, err := client.Post(context.Background(), server.URL, "<clientAO state=on>")
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if reply != "ok" {
		t.Errorf("reply = %q", reply)
	}
}

func TestClientPostEscapesMarkup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "<script>") {
			t.Error("markup in the command must be escaped")
		}
		command, err := decodeLLSDString(body)
		if err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		w.Write(encodeLLSDString(command))
	}))
	defer server.Close()

	command := `say <script> & "quotes"`
	reply, err := (&Client{}).Post(context.Background(), server.URL, command)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if reply != command {
		t.Errorf("round trip changed the payload: %q", reply)
	}
}

func TestClientPostHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cap expired", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := (&Client{}).Post(context.Background(), server.URL, "ping")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("err = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", httpErr.StatusCode)
	}
}

func TestScriptUploaderTwoStage(t *testing.T) {
	task := ref.NewObjectID()
	item := ref.NewItemID()
	const source = "default { state_entry() { llOwnerSay(\"ready\"); } }"

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	var uploadedBody string
	mux.HandleFunc("/cap", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fields, err := decodeLLSDMap(body)
		if err != nil {
			t.Fatalf("decoding stage 1 body: %v", err)
		}
		if fields["task_id"] != task.String() || fields["item_id"] != item.String() {
			t.Errorf("stage 1 fields = %v", fields)
		}
		if fields["is_script_running"] != "1" {
			t.Errorf("script should be set running, fields = %v", fields)
		}
		response, _ := encodeLLSDMap(map[string]any{
			"state":    "upload",
			"uploader": server.URL + "/upload",
		})
		w.Write(response)
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		uploadedBody = string(body)
		response, _ := encodeLLSDMap(map[string]any{
			"state":     "complete",
			"new_asset": "11112222-3333-4444-5555-666677778888",
		})
		w.Write(response)
	})

	uploader := &ScriptUploader{CapabilityURL: server.URL + "/cap"}
	asset, err := uploader.Upload(context.Background(), task, item, source)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if asset != "11112222-3333-4444-5555-666677778888" {
		t.Errorf("asset = %q", asset)
	}
	if uploadedBody != source {
		t.Errorf("uploaded body = %q", uploadedBody)
	}
}

func TestScriptUploaderRefusal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		response, _ := encodeLLSDMap(map[string]any{
			"state":   "error",
			"message": "insufficient permissions",
		})
		w.Write(response)
	}))
	defer server.Close()

	uploader := &ScriptUploader{CapabilityURL: server.URL}
	_, err := uploader.Upload(context.Background(), ref.NewObjectID(), ref.NewItemID(), "x")
	if err == nil || !strings.Contains(err.Error(), "insufficient permissions") {
		t.Errorf("err = %v, want refusal carrying the grid message", err)
	}
}

func TestScriptUploaderNoCapability(t *testing.T) {
	uploader := &ScriptUploader{}
	if _, err := uploader.Upload(context.Background(), ref.NewObjectID(), ref.NewItemID(), "x"); err == nil {
		t.Error("upload without a capability should fail")
	}
}

func TestLLSDMapRoundTrip(t *testing.T) {
	encoded, err := encodeLLSDMap(map[string]any{
		"name":  "bridge & co",
		"count": 3,
		"live":  false,
	})
	if err != nil {
		t.Fatal(err)
	}
	fields, err := decodeLLSDMap(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if fields["name"] != "bridge & co" || fields["count"] != "3" || fields["live"] != "0" {
		t.Errorf("fields = %v", fields)
	}
}
