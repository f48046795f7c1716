// Package cli implements deskctl, the operator CLI for the desk control
// surface.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	xhttp "TradeDesk/pkg/http"
)

// envelope mirrors xhttp.APIResponse with the payload left raw.
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Desk calls the control surface and unwraps the response envelope.
type Desk struct {
	http *xhttp.Client
}

func NewDesk(baseURL string, timeout time.Duration) *Desk {
	return &Desk{http: xhttp.NewClient(
		xhttp.WithBaseURL(strings.TrimRight(baseURL, "/")),
		xhttp.WithTimeout(timeout),
	)}
}

// Call returns the data member of the response. Non-2xx responses become
// errors carrying the server's messages.
func (d *Desk) Call(ctx context.Context, method, path string, query map[string][]string, body any) (json.RawMessage, error) {
	var raw []byte
	err := d.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      method,
		URL:         path,
		Headers:     map[string]string{"Content-Type": "application/json"},
		QueryParams: query,
		Body:        body,
	}, &raw)

	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return nil, fmt.Errorf("%s %s: %s", method, path, describe(se))
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return env.Data, nil
}

// describe pulls the AppError messages out of an error envelope.
func describe(se *xhttp.StatusError) string {
	var env envelope
	if err := json.Unmarshal([]byte(se.Body), &env); err != nil || len(env.Data) == 0 {
		return fmt.Sprintf("status %d", se.Code)
	}
	var appErrs []xhttp.AppError
	if err := json.Unmarshal(env.Data, &appErrs); err != nil || len(appErrs) == 0 {
		return fmt.Sprintf("status %d: %s", se.Code, env.Message)
	}
	msgs := make([]string, 0, len(appErrs))
	for _, e := range appErrs {
		msgs = append(msgs, e.Message)
	}
	return fmt.Sprintf("status %d: %s", se.Code, strings.Join(msgs, "; "))
}

// printJSON indents data onto w. An empty payload prints "ok".
func printJSON(w io.Writer, data json.RawMessage) error {
	if len(data) == 0 || string(data) == "null" {
		_, err := fmt.Fprintln(w, "ok")
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
