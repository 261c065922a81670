package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keihibook/keihibook/constants"
	"github.com/keihibook/keihibook/internal/extract"
)

const prompt = `あなたは日本の会計基準に精通した優秀な経理担当者です。
添付された領収書（画像またはPDF）を解析し、指定スキーマに厳密準拠したJSONのみを返してください。

ルール:
- transaction_date は YYYY-MM-DD。複数日付がある場合は 発行日 > 利用日 > 注文日。
- total_amount は税込合計（円、整数）。読めない場合は 0 にせず推定しない（可能な範囲で読み取る）。
- tax_amount は消費税額（円、整数）。記載がなければ 0。
- invoice_category は 適格請求書発行事業者登録番号があれば "適格"、なければ "区分記載"。
- suggested_debit_account は品目から推定（迷う場合は "雑費"）。
- items_summary は社内ルール判定に使うので「店名＋主要品目」を短く。`

// Extract implements extract.Extractor against the generateContent endpoint,
// sending the payload inline and constraining the reply with a response
// schema. The reply is still validated locally before use.
func (c *Client) Extract(ctx context.Context, data []byte, mimeType string) (extract.Record, []byte, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"mime_type", mimeType,
		"payload_bytes", len(data),
	)

	body := map[string]any{
		"contents": []map[string]any{
			{
				"role": "user",
				"parts": []map[string]any{
					{"text": prompt},
					{"inline_data": map[string]any{
						"mime_type": mimeType,
						"data":      base64.StdEncoding.EncodeToString(data),
					}},
				},
			},
		},
		"generationConfig": map[string]any{
			"responseMimeType": "application/json",
			"responseSchema":   responseSchema(),
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + c.cfg.Model + ":generateContent"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.logger.Error("extract.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.Record{}, nil, err
	}

	var reply struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		c.logger.Error("extract.decode_error", "req_id", rid, "error", err, "raw_bytes", len(raw))
		return extract.Record{}, raw, fmt.Errorf("decode gemini response: %w", err)
	}
	if len(reply.Candidates) == 0 || len(reply.Candidates[0].Content.Parts) == 0 {
		c.logger.Error("extract.no_candidates", "req_id", rid, "raw", string(raw))
		return extract.Record{}, raw, fmt.Errorf("no candidates in gemini response")
	}
	content := []byte(strings.TrimSpace(reply.Candidates[0].Content.Parts[0].Text))

	rec, err := extract.DecodeRecord(content)
	if err != nil {
		c.logger.Error("extract.schema_validation_failed",
			"req_id", rid, "error", err, "content", string(content),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return extract.Record{}, content, err
	}

	c.logger.Info("extract.ok",
		"req_id", rid,
		"store", rec.StoreName,
		"date", rec.TransactionDate,
		"total", rec.TotalAmount,
		"tax", rec.TaxAmount,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return rec, content, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini http error: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("gemini response body close error", "error", err)
		}
	}()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read gemini response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini status %d: %s", resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

// responseSchema is the structured-output constraint in the API's own
// schema dialect (uppercase types, propertyOrdering).
func responseSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"store_name":       map[string]any{"type": "STRING"},
			"transaction_date": map[string]any{"type": "STRING"},
			"total_amount":     map[string]any{"type": "INTEGER"},
			"tax_amount":       map[string]any{"type": "INTEGER"},
			"invoice_category": map[string]any{
				"type": "STRING",
				"enum": []string{constants.InvoiceQualified, constants.InvoiceCategorized},
			},
			"suggested_debit_account": map[string]any{"type": "STRING"},
			"description":             map[string]any{"type": "STRING"},
			"memo":                    map[string]any{"type": "STRING"},
			"items_summary":           map[string]any{"type": "STRING"},
		},
		"propertyOrdering": []string{
			"store_name",
			"transaction_date",
			"total_amount",
			"tax_amount",
			"invoice_category",
			"suggested_debit_account",
			"description",
			"memo",
			"items_summary",
		},
	}
}
