package krishichat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// FilesService uploads attachments referenced by chat messages.
type FilesService struct {
	client *Client
}

// UploadedFile describes a stored attachment.
type UploadedFile struct {
	ID       string `json:"_id"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Upload stores one file under the multipart field "file".
func (s *FilesService) Upload(ctx context.Context, filename string, r io.Reader) (*UploadedFile, error) {
	if filename == "" {
		return nil, NewInvalidRequestError("filename must not be empty")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("build multipart body: %v", err))
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("read file contents: %v", err))
	}
	if err := writer.Close(); err != nil {
		return nil, NewInvalidRequestError(fmt.Sprintf("finish multipart body: %v", err))
	}

	req, err := s.client.newRequest(ctx, http.MethodPost, "/files/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: req.URL.String(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, raw)
	}

	var envelope struct {
		Success bool         `json:"success"`
		Data    UploadedFile `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, NewAPIError(fmt.Sprintf("decode upload response: %v", err))
	}
	return &envelope.Data, nil
}
