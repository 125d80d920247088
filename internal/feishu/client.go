package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/models"
)

// DefaultBaseURL is the Feishu open platform endpoint.
const DefaultBaseURL = "https://open.feishu.cn"

// tokenRefreshMargin is subtracted from the reported token lifetime so a
// token is never used right at its expiry edge.
const tokenRefreshMargin = 60 * time.Second

// Client talks to the Feishu open APIs. Every call is a single attempt;
// failures are surfaced to the caller, never retried here.
type Client struct {
	baseURL   string
	appID     string
	appSecret string
	http      *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Chat is one group the bot is a member of.
type Chat struct {
	ChatID string `json:"chat_id"`
	Name   string `json:"name"`
}

// NewClient creates a Feishu API client. baseURL may be empty to use the
// production endpoint.
func NewClient(appID, appSecret, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:   baseURL,
		appID:     appID,
		appSecret: appSecret,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// TenantAccessToken returns a cached tenant access token, fetching a new one
// when the cached token is missing or about to expire.
func (c *Client) TenantAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	if c.appID == "" || c.appSecret == "" {
		return "", fmt.Errorf("app_id or app_secret is empty")
	}

	payload, _ := json.Marshal(map[string]string{
		"app_id":     c.appID,
		"app_secret": c.appSecret,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/auth/v3/tenant_access_token/internal", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get tenant_access_token: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Code              int    `json:"code"`
		Msg               string `json:"msg"`
		TenantAccessToken string `json:"tenant_access_token"`
		Expire            int    `json:"expire"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if result.Code != 0 {
		return "", fmt.Errorf("failed to get tenant_access_token: %s", result.Msg)
	}

	c.token = result.TenantAccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.Expire)*time.Second - tokenRefreshMargin)
	return c.token, nil
}

// doJSON issues an authenticated request with an optional JSON body and
// decodes the standard {code, msg, data} envelope.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	logrus.Debugf("%s: %s", method, u)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("feishu api error (code %d): %s", env.Code, env.Msg)
	}
	return env.Data, nil
}

// Reply replies to a message with plain text.
func (c *Client) Reply(ctx context.Context, messageID, text string) error {
	content, _ := json.Marshal(map[string]string{"text": text})
	body := map[string]string{
		"content":  string(content),
		"msg_type": "text",
	}
	_, err := c.doJSON(ctx, http.MethodPost,
		"/open-apis/im/v1/messages/"+messageID+"/reply", nil, body)
	if err != nil {
		return fmt.Errorf("failed to reply to message %s: %w", messageID, err)
	}
	return nil
}

// SendText sends a plain text message to a chat.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	content, _ := json.Marshal(map[string]string{"text": text})
	return c.sendMessage(ctx, chatID, "text", string(content))
}

// SendCard sends an interactive card message to a chat.
func (c *Client) SendCard(ctx context.Context, chatID string, card any) error {
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("failed to marshal card: %w", err)
	}
	return c.sendMessage(ctx, chatID, "interactive", string(content))
}

func (c *Client) sendMessage(ctx context.Context, chatID, msgType, content string) error {
	query := url.Values{"receive_id_type": {"chat_id"}}
	body := map[string]string{
		"receive_id": chatID,
		"msg_type":   msgType,
		"content":    content,
	}
	_, err := c.doJSON(ctx, http.MethodPost, "/open-apis/im/v1/messages", query, body)
	if err != nil {
		return fmt.Errorf("failed to send message to chat %s: %w", chatID, err)
	}
	return nil
}

// ListChats returns all chats the bot is a member of, following pagination.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var chats []Chat
	pageToken := ""

	for {
		query := url.Values{"page_size": {"100"}}
		if pageToken != "" {
			query.Set("page_token", pageToken)
		}

		data, err := c.doJSON(ctx, http.MethodGet, "/open-apis/im/v1/chats", query, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list chats: %w", err)
		}

		var page struct {
			Items     []Chat `json:"items"`
			HasMore   bool   `json:"has_more"`
			PageToken string `json:"page_token"`
		}
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("failed to decode chat list: %w", err)
		}

		chats = append(chats, page.Items...)
		if !page.HasMore {
			return chats, nil
		}
		pageToken = page.PageToken
	}
}

// FetchSheetRows fetches the value grid of one spreadsheet sheet.
func (c *Client) FetchSheetRows(ctx context.Context, spreadsheetToken, sheetID string) ([][]any, error) {
	data, err := c.doJSON(ctx, http.MethodGet,
		"/open-apis/sheets/v2/spreadsheets/"+spreadsheetToken+"/values/"+sheetID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sheet content: %w", err)
	}

	var result struct {
		ValueRange struct {
			Values [][]any `json:"values"`
		} `json:"valueRange"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode sheet content: %w", err)
	}
	return result.ValueRange.Values, nil
}

// FetchTableRecords fetches all records of one multi-dimensional table.
func (c *Client) FetchTableRecords(ctx context.Context, appToken, tableID string) ([]models.RawRecord, error) {
	data, err := c.doJSON(ctx, http.MethodGet,
		"/open-apis/bitable/v1/apps/"+appToken+"/tables/"+tableID+"/records", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bitable content: %w", err)
	}

	var result struct {
		Items []models.RawRecord `json:"items"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode bitable content: %w", err)
	}
	return result.Items, nil
}

// FetchDocRaw fetches the raw text content of a document.
func (c *Client) FetchDocRaw(ctx context.Context, docToken string) (string, error) {
	data, err := c.doJSON(ctx, http.MethodGet,
		"/open-apis/docx/v1/documents/"+docToken+"/raw_content", nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fetch doc content: %w", err)
	}

	var result struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("failed to decode doc content: %w", err)
	}
	return result.Content, nil
}

// UpdateRecord writes a single field of one table record.
func (c *Client) UpdateRecord(ctx context.Context, appToken, tableID, recordID, field string, value any) error {
	body := map[string]any{
		"fields": map[string]any{field: value},
	}
	_, err := c.doJSON(ctx, http.MethodPut,
		"/open-apis/bitable/v1/apps/"+appToken+"/tables/"+tableID+"/records/"+recordID, nil, body)
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", recordID, err)
	}
	return nil
}

// DownloadMedia downloads the binary content behind a drive file token.
func (c *Client) DownloadMedia(ctx context.Context, fileToken string) ([]byte, error) {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/open-apis/drive/v1/medias/"+fileToken+"/download", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download media %s: %w", fileToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download media %s: status %d", fileToken, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// UploadImage uploads image bytes to the message image store and returns the
// platform image key.
func (c *Client) UploadImage(ctx context.Context, image []byte) (string, error) {
	token, err := c.TenantAccessToken(ctx)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("image_type", "message"); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	part, err := writer.CreateFormFile("image", "image.png")
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/open-apis/im/v1/images", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			ImageKey string `json:"image_key"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if env.Code != 0 {
		return "", fmt.Errorf("failed to upload image: %s", env.Msg)
	}
	return env.Data.ImageKey, nil
}
