package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// renderRequest mirrors the pdfpool API request model.
type renderRequest struct {
	HTML            string  `json:"html"`
	Format          string  `json:"format,omitempty"`
	Orientation     string  `json:"orientation,omitempty"`
	PrintBackground *bool   `json:"print_background,omitempty"`
	Scale           float64 `json:"scale,omitempty"`
	Timeout         int     `json:"timeout,omitempty"`
}

// renderResponse mirrors the pdfpool API JSON response model.
type renderResponse struct {
	Success          bool   `json:"success"`
	PDFBase64        string `json:"pdf_base64"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	RetryCount       int    `json:"retry_count"`
	Error            *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	apiURL := os.Getenv("PDFPOOL_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiURL = strings.TrimRight(apiURL, "/")
	apiKey := os.Getenv("PDFPOOL_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "PDFPOOL_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"pdfpool",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	renderPDFTool := mcp.NewTool("render_pdf",
		mcp.WithDescription("Render an HTML document to PDF using a pool of headless browsers. Writes the PDF to output_path when given, otherwise returns it base64-encoded."),
		mcp.WithString("html",
			mcp.Required(),
			mcp.Description("The complete HTML document to render"),
		),
		mcp.WithString("format",
			mcp.Description("Paper format (default: 'A4')"),
			mcp.Enum("A0", "A1", "A2", "A3", "A4", "A5", "A6", "Letter", "Legal", "Tabloid", "Ledger"),
		),
		mcp.WithBoolean("landscape",
			mcp.Description("Use landscape orientation (default: false)"),
		),
		mcp.WithBoolean("print_background",
			mcp.Description("Print CSS backgrounds (default: true)"),
		),
		mcp.WithNumber("scale",
			mcp.Description("Rendering scale between 0.1 and 2 (default: 1)"),
		),
		mcp.WithString("output_path",
			mcp.Description("File path to write the PDF to. When omitted the PDF is returned as base64."),
		),
	)
	s.AddTool(renderPDFTool, handleRenderPDF(apiURL, apiKey))

	poolStatsTool := mcp.NewTool("pool_stats",
		mcp.WithDescription("Report the render pool's worker count, health, average age and usage."),
	)
	s.AddTool(poolStatsTool, handlePoolStats(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the pdfpool API and returns the status code and body.
func apiDo(ctx context.Context, client *http.Client, method, url, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func handleRenderPDF(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 300 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		html, err := request.RequireString("html")
		if err != nil {
			return mcp.NewToolResultError("html is required"), nil
		}

		printBackground := request.GetBool("print_background", true)
		reqBody := renderRequest{
			HTML:            html,
			Format:          request.GetString("format", ""),
			Orientation:     "portrait",
			PrintBackground: &printBackground,
			Scale:           request.GetFloat("scale", 0),
		}
		if request.GetBool("landscape", false) {
			reqBody.Orientation = "landscape"
		}

		_, respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/render?response=json", apiKey, reqBody)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var renderResp renderResponse
		if err := json.Unmarshal(respBody, &renderResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !renderResp.Success {
			errMsg := "render failed"
			if renderResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", renderResp.Error.Code, renderResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		summary := fmt.Sprintf("Generated in %dms with %d retries",
			renderResp.GenerationTimeMs, renderResp.RetryCount)

		outputPath := request.GetString("output_path", "")
		if outputPath == "" {
			return mcp.NewToolResultText(summary + "\n\n" + renderResp.PDFBase64), nil
		}

		pdf, err := base64.StdEncoding.DecodeString(renderResp.PDFBase64)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to decode PDF: %v", err)), nil
		}
		if err := os.WriteFile(outputPath, pdf, 0o644); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to write %s: %v", outputPath, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Wrote %d bytes to %s. %s", len(pdf), outputPath, summary)), nil
	}
}

func handlePoolStats(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status, respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/stats", apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if status != http.StatusOK {
			return mcp.NewToolResultError(fmt.Sprintf("stats request failed with status %d: %s", status, respBody)), nil
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, respBody, "", "  "); err != nil {
			return mcp.NewToolResultText(string(respBody)), nil
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}
