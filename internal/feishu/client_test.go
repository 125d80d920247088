package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenPath = "/open-apis/auth/v3/tenant_access_token/internal"

// newTestServer wires the token endpoint plus the given handlers into one
// httptest server and returns a client pointed at it.
func newTestServer(t *testing.T, tokenCalls *atomic.Int32, handlers map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		if tokenCalls != nil {
			tokenCalls.Add(1)
		}
		fmt.Fprint(w, `{"code":0,"msg":"ok","tenant_access_token":"t-abc","expire":7200}`)
	})
	for path, h := range handlers {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewClient("cli_id", "cli_secret", srv.URL)
}

func TestTenantAccessTokenCached(t *testing.T) {
	var calls atomic.Int32
	c := newTestServer(t, &calls, nil)

	tok, err := c.TenantAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t-abc", tok)

	_, err = c.TenantAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTenantAccessTokenMissingCredentials(t *testing.T) {
	c := NewClient("", "", "http://unused")
	_, err := c.TenantAccessToken(context.Background())
	assert.Error(t, err)
}

func TestReplySendsTextContent(t *testing.T) {
	var gotBody map[string]string
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/im/v1/messages/om_1/reply": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "Bearer t-abc", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
		},
	})

	err := c.Reply(context.Background(), "om_1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "text", gotBody["msg_type"])
	assert.JSONEq(t, `{"text":"hello"}`, gotBody["content"])
}

func TestAPIErrorCodeSurfaces(t *testing.T) {
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/im/v1/messages/om_1/reply": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":230002,"msg":"bot not in chat"}`)
		},
	})

	err := c.Reply(context.Background(), "om_1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230002")
}

func TestSendCardUsesChatReceiveID(t *testing.T) {
	var gotQuery, gotMsgType string
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/im/v1/messages": func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query().Get("receive_id_type")
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			gotMsgType = body["msg_type"]
			fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
		},
	})

	err := c.SendCard(context.Background(), "oc_1", map[string]string{"type": "template"})
	require.NoError(t, err)
	assert.Equal(t, "chat_id", gotQuery)
	assert.Equal(t, "interactive", gotMsgType)
}

func TestListChatsFollowsPagination(t *testing.T) {
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/im/v1/chats": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page_token") == "" {
				fmt.Fprint(w, `{"code":0,"data":{"items":[{"chat_id":"oc_1"}],"has_more":true,"page_token":"p2"}}`)
				return
			}
			fmt.Fprint(w, `{"code":0,"data":{"items":[{"chat_id":"oc_2"}],"has_more":false}}`)
		},
	})

	chats, err := c.ListChats(context.Background())
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "oc_1", chats[0].ChatID)
	assert.Equal(t, "oc_2", chats[1].ChatID)
}

func TestFetchSheetRows(t *testing.T) {
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/sheets/v2/spreadsheets/sht_1/values/s1": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":0,"data":{"valueRange":{"values":[["name","desc"],["Item A","text"]]}}}`)
		},
	})

	rows, err := c.FetchSheetRows(context.Background(), "sht_1", "s1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Item A", rows[1][0])
}

func TestFetchTableRecords(t *testing.T) {
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/bitable/v1/apps/app_1/tables/tbl_1/records": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"code":0,"data":{"items":[{"record_id":"rec_1","fields":{"名称":"Item"}}]}}`)
		},
	})

	records, err := c.FetchTableRecords(context.Background(), "app_1", "tbl_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec_1", records[0].RecordID)
	assert.Equal(t, "Item", records[0].Fields["名称"])
}

func TestUpdateRecordSendsFieldMap(t *testing.T) {
	var gotBody map[string]any
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/bitable/v1/apps/app_1/tables/tbl_1/records/rec_1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			fmt.Fprint(w, `{"code":0,"msg":"ok","data":{}}`)
		},
	})

	err := c.UpdateRecord(context.Background(), "app_1", "tbl_1", "rec_1", "image_key1", "img_new")
	require.NoError(t, err)
	fields, ok := gotBody["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "img_new", fields["image_key1"])
}

func TestDownloadMedia(t *testing.T) {
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/drive/v1/medias/tok_1/download": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
		},
		"/open-apis/drive/v1/medias/tok_missing/download": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	})

	content, err := c.DownloadMedia(context.Background(), "tok_1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, content)

	_, err = c.DownloadMedia(context.Background(), "tok_missing")
	assert.Error(t, err)
}

func TestUploadImage(t *testing.T) {
	c := newTestServer(t, nil, map[string]http.HandlerFunc{
		"/open-apis/im/v1/images": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "message", r.FormValue("image_type"))
			file, _, err := r.FormFile("image")
			require.NoError(t, err)
			defer file.Close()
			fmt.Fprint(w, `{"code":0,"msg":"ok","data":{"image_key":"img_v2_new"}}`)
		},
	})

	key, err := c.UploadImage(context.Background(), []byte("png bytes"))
	require.NoError(t, err)
	assert.Equal(t, "img_v2_new", key)
}
