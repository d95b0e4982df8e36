package krishichat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	opts = append([]ClientOption{WithBaseURL(server.URL)}, opts...)
	return NewClient(opts...)
}

func TestConversationsList(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Errorf("path = %q, want /conversations", r.URL.Path)
		}
		if got := r.URL.Query().Get("page"); got != "1" {
			t.Errorf("page = %q, want default 1", got)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("limit = %q, want default 20", got)
		}
		io.WriteString(w, `{"success":true,"data":{
			"userId":"u1",
			"conversations":{"docs":[{"_id":"c1","title":"Wheat rust"}],"totalDocs":1,"page":1,"totalPages":1}
		}}`)
	})
	client := newTestClient(t, handler)

	page, err := client.Conversations.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(page.Docs) != 1 || page.Docs[0].ID != "c1" || page.Docs[0].Title != "Wheat rust" {
		t.Fatalf("Docs = %+v", page.Docs)
	}
}

func TestConversationsGet(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/c1" {
			t.Errorf("path = %q, want /conversations/c1", r.URL.Path)
		}
		io.WriteString(w, `{"success":true,"data":{
			"_id":"c1","title":"Wheat rust",
			"messages":[
				{"_id":"m1","senderRole":"farmer","type":"text","text":"leaves look orange"},
				{"_id":"m2","senderRole":"bot","type":"text","text":"likely stripe rust"},
				{"_id":"m3","senderRole":"officer","type":"text","text":"spray propiconazole"}
			]
		}}`)
	})
	client := newTestClient(t, handler)

	detail, err := client.Conversations.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if len(detail.Messages) != 3 {
		t.Fatalf("Messages = %+v", detail.Messages)
	}
	if detail.Messages[2].SenderRole != SenderOfficer {
		t.Fatalf("SenderRole = %q, want officer", detail.Messages[2].SenderRole)
	}

	if _, err := client.Conversations.Get(context.Background(), ""); err == nil {
		t.Fatal("Get with empty id: error = nil, want invalid request")
	}
}

func TestEnvelopeFailureBecomesAPIError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"message":"unauthorized role"}`)
	})
	client := newTestClient(t, handler)

	_, err := client.Conversations.List(context.Background(), 1, 20)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if apiErr.Message != "unauthorized role" {
		t.Fatalf("Message = %q", apiErr.Message)
	}
}

func TestQueriesForwardAndAnswer(t *testing.T) {
	t.Parallel()

	type call struct {
		method, path, body string
	}
	var calls []call
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.Path, string(body)})
		io.WriteString(w, `{"success":true}`)
	})
	client := newTestClient(t, handler)

	if err := client.Queries.Forward(context.Background(), "c1"); err != nil {
		t.Fatalf("Forward error: %v", err)
	}
	if err := client.Queries.Answer(context.Background(), "q1", "rotate crops"); err != nil {
		t.Fatalf("Answer error: %v", err)
	}

	if len(calls) != 2 {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].method != http.MethodPost || calls[0].path != "/forwarded-queries/forward" {
		t.Fatalf("forward call = %+v", calls[0])
	}
	if !strings.Contains(calls[0].body, `"conversationId":"c1"`) {
		t.Fatalf("forward body = %q", calls[0].body)
	}
	if calls[1].method != http.MethodPatch || calls[1].path != "/forwarded-queries/q1/answer" {
		t.Fatalf("answer call = %+v", calls[1])
	}
	if !strings.Contains(calls[1].body, `"answer":"rotate crops"`) {
		t.Fatalf("answer body = %q", calls[1].body)
	}

	if err := client.Queries.Forward(context.Background(), ""); err == nil {
		t.Fatal("Forward with empty id: error = nil, want invalid request")
	}
	if err := client.Queries.Answer(context.Background(), "", "x"); err == nil {
		t.Fatal("Answer with empty id: error = nil, want invalid request")
	}
}

func TestQueriesMineAndAll(t *testing.T) {
	t.Parallel()

	var paths []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		io.WriteString(w, `{"success":true,"data":{"docs":[{"_id":"q1","status":"pending","question":"aphids"}]}}`)
	})
	client := newTestClient(t, handler)

	mine, err := client.Queries.Mine(context.Background())
	if err != nil {
		t.Fatalf("Mine error: %v", err)
	}
	all, err := client.Queries.All(context.Background())
	if err != nil {
		t.Fatalf("All error: %v", err)
	}

	if len(mine) != 1 || mine[0].Status != QueryPending {
		t.Fatalf("Mine = %+v", mine)
	}
	if len(all) != 1 || all[0].ID != "q1" {
		t.Fatalf("All = %+v", all)
	}
	if len(paths) != 2 || paths[0] != "/forwarded-queries/me" || paths[1] != "/forwarded-queries/" {
		t.Fatalf("paths = %v", paths)
	}
}

func TestFilesUpload(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/upload" {
			t.Errorf("path = %q, want /files/upload", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "leaf.jpg" {
			t.Errorf("Filename = %q, want leaf.jpg", header.Filename)
		}
		contents, _ := io.ReadAll(file)
		if string(contents) != "jpegbytes" {
			t.Errorf("contents = %q", contents)
		}
		io.WriteString(w, `{"success":true,"data":{"_id":"f1","url":"https://cdn.example/leaf.jpg","filename":"leaf.jpg","mimeType":"image/jpeg","size":9}}`)
	})
	client := newTestClient(t, handler)

	uploaded, err := client.Files.Upload(context.Background(), "leaf.jpg", strings.NewReader("jpegbytes"))
	if err != nil {
		t.Fatalf("Upload error: %v", err)
	}
	if uploaded.ID != "f1" || uploaded.URL != "https://cdn.example/leaf.jpg" {
		t.Fatalf("uploaded = %+v", uploaded)
	}

	if _, err := client.Files.Upload(context.Background(), "", strings.NewReader("x")); err == nil {
		t.Fatal("Upload with empty filename: error = nil, want invalid request")
	}
}

func TestNotificationsList(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/notifications" {
			t.Errorf("call = %s %s, want GET /notifications", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"success":true,"data":[
			{"_id":"n1","type":"query_answered","title":"Query answered","message":"An officer replied","data":{"queryId":"q1"},"isRead":false},
			{"_id":"n2","type":"query_forwarded","title":"Query forwarded","message":"Sent to officers","data":{"conversationId":"c1"},"isRead":true}
		]}`)
	})
	client := newTestClient(t, handler)

	notifications, err := client.Notifications.List(context.Background())
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("notifications = %+v", notifications)
	}
	if notifications[0].Data == nil || notifications[0].Data.QueryID != "q1" {
		t.Fatalf("notifications[0].Data = %+v, want query link", notifications[0].Data)
	}
	if got := UnreadCount(notifications); got != 1 {
		t.Fatalf("UnreadCount = %d, want 1", got)
	}
}

func TestNotificationsMarkRead(t *testing.T) {
	t.Parallel()

	var calls []string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s, want PATCH", r.Method)
		}
		calls = append(calls, r.URL.Path)
		io.WriteString(w, `{"success":true}`)
	})
	client := newTestClient(t, handler)

	if err := client.Notifications.MarkRead(context.Background(), "n1"); err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}
	if err := client.Notifications.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead error: %v", err)
	}

	want := []string{"/notifications/n1/read", "/notifications/mark-all-read"}
	if len(calls) != 2 || calls[0] != want[0] || calls[1] != want[1] {
		t.Fatalf("paths = %v, want %v", calls, want)
	}

	if err := client.Notifications.MarkRead(context.Background(), ""); err == nil {
		t.Fatal("MarkRead with empty id: error = nil, want invalid request")
	}
}

func TestLiveTokenCachingAndFresh(t *testing.T) {
	t.Parallel()

	mints := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/create-gemini-live-token" {
			t.Errorf("call = %s %s", r.Method, r.URL.Path)
		}
		mints++
		json.NewEncoder(w).Encode(map[string]any{
			"token": map[string]string{"name": "ephemeral-" + strings.Repeat("x", mints)},
		})
	})
	client := newTestClient(t, handler)

	first, err := client.LiveTokens.LiveToken(context.Background(), false)
	if err != nil {
		t.Fatalf("LiveToken error: %v", err)
	}
	cached, err := client.LiveTokens.LiveToken(context.Background(), false)
	if err != nil {
		t.Fatalf("cached LiveToken error: %v", err)
	}
	if first != cached || mints != 1 {
		t.Fatalf("cached token = %q (mints=%d), want first token reused", cached, mints)
	}

	fresh, err := client.LiveTokens.LiveToken(context.Background(), true)
	if err != nil {
		t.Fatalf("fresh LiveToken error: %v", err)
	}
	if fresh == first || mints != 2 {
		t.Fatalf("fresh token = %q (mints=%d), want refetch", fresh, mints)
	}
}

func TestLiveTokenAccessTokenFallback(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"accessToken":"fallback-token"}`)
	})
	client := newTestClient(t, handler)

	token, err := client.LiveTokens.LiveToken(context.Background(), false)
	if err != nil {
		t.Fatalf("LiveToken error: %v", err)
	}
	if token != "fallback-token" {
		t.Fatalf("token = %q, want accessToken fallback", token)
	}
}

func TestLiveTokenEmptyResponseIsError(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	client := newTestClient(t, handler)

	if _, err := client.LiveTokens.LiveToken(context.Background(), false); err == nil {
		t.Fatal("LiveToken error = nil, want empty-token failure")
	}
}
