package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/EduardF1/adversus-interview-assignment/core/locks"
	"github.com/EduardF1/adversus-interview-assignment/core/notes"
)

type apiClient struct {
	base    string
	session string
	hc      *http.Client
}

func newAPIClient() *apiClient {
	timeout := viper.GetInt("timeout")
	if timeout <= 0 {
		timeout = 10
	}
	return &apiClient{
		base:    strings.TrimRight(viper.GetString("server"), "/"),
		session: strings.TrimSpace(viper.GetString("session")),
		hc:      &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}
}

func (c *apiClient) requireSession() error {
	if c.session == "" {
		return fmt.Errorf("no session token: pass --session or set NOTELOCK_SESSION (mint one with \"notelockctl session\")")
	}
	return nil
}

// lockDenial is the server's 409/403 body when someone else holds the lock.
type lockDenial struct {
	Error     string `json:"error"`
	Holder    string `json:"holder"`
	ExpiresAt string `json:"expires_at"`
}

type acquireReply struct {
	Granted bool
	Acq     locks.Acquisition
	Denial  lockDenial
}

type releaseReply struct {
	Released bool
	Denial   lockDenial
}

type updateReply struct {
	Updated bool
	Note    notes.Note
	Denial  lockDenial
}

func (c *apiClient) do(ctx context.Context, method, path string, body any, withHolder bool) (*http.Response, []byte, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if withHolder {
		req.Header.Set("X-Holder", c.session)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	return resp, data, nil
}

func apiError(status int, data []byte) error {
	msg := strings.TrimSpace(string(data))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return fmt.Errorf("server returned %d: %s", status, msg)
}

func (c *apiClient) mintSession(ctx context.Context) (string, error) {
	resp, data, err := c.do(ctx, http.MethodGet, "/api/v1/session", nil, false)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", apiError(resp.StatusCode, data)
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return body.SessionID, nil
}

func (c *apiClient) listNotes(ctx context.Context, limit int) ([]notes.Summary, error) {
	path := "/api/v1/notes"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	resp, data, err := c.do(ctx, http.MethodGet, path, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, data)
	}
	var body struct {
		Notes []notes.Summary `json:"notes"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}
	return body.Notes, nil
}

func (c *apiClient) getNote(ctx context.Context, id string) (*notes.Summary, error) {
	resp, data, err := c.do(ctx, http.MethodGet, "/api/v1/notes/"+url.PathEscape(id), nil, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, data)
	}
	var summary notes.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("decode note: %w", err)
	}
	return &summary, nil
}

func (c *apiClient) createNote(ctx context.Context, id, title, body string) (*notes.Note, error) {
	payload := map[string]string{"title": title}
	if id != "" {
		payload["id"] = id
	}
	if body != "" {
		payload["body"] = body
	}
	resp, data, err := c.do(ctx, http.MethodPost, "/api/v1/notes", payload, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp.StatusCode, data)
	}
	var note notes.Note
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, fmt.Errorf("decode note: %w", err)
	}
	return &note, nil
}

func (c *apiClient) acquire(ctx context.Context, id string) (*acquireReply, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	resp, data, err := c.do(ctx, http.MethodPost, "/api/v1/notes/"+url.PathEscape(id)+"/lock",
		map[string]string{"holder": c.session}, false)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		reply := &acquireReply{Granted: true}
		if err := json.Unmarshal(data, &reply.Acq); err != nil {
			return nil, fmt.Errorf("decode acquisition: %w", err)
		}
		return reply, nil
	case http.StatusConflict:
		reply := &acquireReply{}
		if err := json.Unmarshal(data, &reply.Denial); err != nil {
			return nil, fmt.Errorf("decode denial: %w", err)
		}
		return reply, nil
	default:
		return nil, apiError(resp.StatusCode, data)
	}
}

func (c *apiClient) release(ctx context.Context, id string) (*releaseReply, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	resp, data, err := c.do(ctx, http.MethodDelete, "/api/v1/notes/"+url.PathEscape(id)+"/lock", nil, true)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusNoContent:
		return &releaseReply{Released: true}, nil
	case http.StatusForbidden:
		reply := &releaseReply{}
		if err := json.Unmarshal(data, &reply.Denial); err != nil {
			return nil, fmt.Errorf("decode denial: %w", err)
		}
		return reply, nil
	default:
		return nil, apiError(resp.StatusCode, data)
	}
}

func (c *apiClient) update(ctx context.Context, id string, title, body *string) (*updateReply, error) {
	if err := c.requireSession(); err != nil {
		return nil, err
	}
	payload := map[string]any{"holder": c.session}
	if title != nil {
		payload["title"] = *title
	}
	if body != nil {
		payload["body"] = *body
	}
	resp, data, err := c.do(ctx, http.MethodPatch, "/api/v1/notes/"+url.PathEscape(id), payload, false)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		reply := &updateReply{Updated: true}
		if err := json.Unmarshal(data, &reply.Note); err != nil {
			return nil, fmt.Errorf("decode note: %w", err)
		}
		return reply, nil
	case http.StatusConflict:
		reply := &updateReply{}
		if err := json.Unmarshal(data, &reply.Denial); err != nil {
			return nil, fmt.Errorf("decode denial: %w", err)
		}
		return reply, nil
	default:
		return nil, apiError(resp.StatusCode, data)
	}
}
