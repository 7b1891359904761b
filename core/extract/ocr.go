package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// OCRClient sends PDF bytes to an external OCR service and maps the
// per-page results back onto the document's page sequence. It is used
// only when native extraction finds a scanned document.
type OCRClient struct {
	baseURL    string
	httpClient *http.Client
}

type ocrPage struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type ocrResponse struct {
	Success bool      `json:"success"`
	Pages   []ocrPage `json:"pages"`
	Error   string    `json:"error,omitempty"`
}

// NewOCRClient creates a client for the OCR service at baseURL. OCR on
// large scanned documents is slow, the timeout accounts for that.
func NewOCRClient(baseURL string) *OCRClient {
	return &OCRClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// ExtractPages renders the PDF at 300 DPI on the OCR service and
// returns the recognized text per page. Pages come back 1-indexed and
// dense, matching the native extractor's contract.
func (c *OCRClient) ExtractPages(ctx context.Context, data []byte, filename string) ([]model.Page, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	fileWriter, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, helper.NewError("creating ocr form file", err)
	}
	if _, err := fileWriter.Write(data); err != nil {
		return nil, helper.NewError("writing ocr form file", err)
	}
	if err := writer.WriteField("dpi", fmt.Sprintf("%d", OCRDPI)); err != nil {
		return nil, helper.NewError("writing ocr form field", err)
	}
	if err := writer.Close(); err != nil {
		return nil, helper.NewError("closing ocr form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr/extract", &buf)
	if err != nil {
		return nil, helper.NewError("creating ocr request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, helper.NewError("ocr request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, helper.NewError("ocr request", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var ocrResp ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return nil, helper.NewError("decoding ocr response", err)
	}
	if !ocrResp.Success {
		return nil, helper.NewError("ocr processing", fmt.Errorf("%s", ocrResp.Error))
	}

	pages := make([]model.Page, 0, len(ocrResp.Pages))
	for i, p := range ocrResp.Pages {
		pageNum := p.Page
		if pageNum < 1 {
			pageNum = i + 1
		}
		pages = append(pages, model.Page{
			PageNum:      pageNum,
			Text:         p.Text,
			OCRExtracted: true,
		})
	}
	return pages, nil
}
