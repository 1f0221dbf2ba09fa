package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/lighthouse-labs/policywatch/pkg/extract"
)

// HTML retrieves url, checks robots.txt, and extracts readable text.
// It never returns a Go error for ordinary fetch failures - those are
// reported via Result.Success/ErrorType, matching
// original_source/fetchers/html_fetcher.py's "fetchers should not
// raise exceptions" contract. A non-nil error return means the
// context was canceled or its deadline passed.
func HTML(ctx context.Context, c *Client, targetURL string) (*Result, error) {
	allowed, _ := CheckRobots(ctx, c, targetURL, c.UserAgent)
	if !allowed {
		return failure(ErrNetwork, "disallowed by robots.txt"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return failure(ErrUnknown, err.Error()), nil
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return failure(ErrNetwork, err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return failure(ErrNotFound, fmt.Sprintf("404 for %s", targetURL)), nil
	}
	if resp.StatusCode >= 400 {
		return failure(ErrNetwork, fmt.Sprintf("status %d for %s", resp.StatusCode, targetURL)), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(ErrNetwork, err.Error()), nil
	}

	text, err := extract.HTML(string(body))
	if err != nil {
		return failure(ErrParse, err.Error()), nil
	}

	md, _ := extract.HTMLMetadata(string(body), resp.Header.Get("Last-Modified"))

	return &Result{
		RawText:     text,
		ContentType: "text/html",
		FetchedAt:   resultTime(),
		Success:     true,
		Metadata: map[string]any{
			"page_title":     md.PageTitle,
			"last_modified":  md.LastModified,
			"description":    md.Description,
			"final_url":      resp.Request.URL.String(),
			"status_code":    resp.StatusCode,
			"content_length": resp.ContentLength,
		},
	}, nil
}

// PDF retrieves url and extracts per-page text plus document metadata.
func PDF(ctx context.Context, c *Client, targetURL string) (*Result, error) {
	allowed, _ := CheckRobots(ctx, c, targetURL, c.UserAgent)
	if !allowed {
		return failure(ErrNetwork, "disallowed by robots.txt"), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return failure(ErrUnknown, err.Error()), nil
	}

	resp, err := c.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return failure(ErrNetwork, err.Error()), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return failure(ErrNotFound, fmt.Sprintf("404 for %s", targetURL)), nil
	}
	if resp.StatusCode >= 400 {
		return failure(ErrNetwork, fmt.Sprintf("status %d for %s", resp.StatusCode, targetURL)), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(ErrNetwork, err.Error()), nil
	}

	result, err := extract.PDF(body)
	if err != nil {
		if errors.Is(err, extract.ErrEncryptedPDF) {
			return failure(ErrAuthentication, err.Error()), nil
		}
		return failure(ErrParse, err.Error()), nil
	}

	return &Result{
		RawText:     result.Text,
		ContentType: "application/pdf",
		FetchedAt:   resultTime(),
		Success:     true,
		Metadata: map[string]any{
			"page_count":    result.PageCount,
			"creation_date": result.CreationDate,
			"mod_date":      result.ModDate,
			"author":        result.Author,
			"title":         result.Title,
		},
	}, nil
}
