package bot

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekdata/seekbot/internal/importer"
	"github.com/seekdata/seekbot/internal/store"
)

// fakeAPI records every outgoing message and serves a canned file URL.
type fakeAPI struct {
	mu      sync.Mutex
	texts   []string
	nextID  int
	fileURL string
	fileErr error
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch m := c.(type) {
	case tgbotapi.MessageConfig:
		f.texts = append(f.texts, m.Text)
	case tgbotapi.EditMessageTextConfig:
		f.texts = append(f.texts, m.Text)
	default:
		return tgbotapi.Message{}, fmt.Errorf("unexpected chattable %T", c)
	}

	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	return f.fileURL, f.fileErr
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	ch := make(chan tgbotapi.Update)
	close(ch)
	return ch
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeAPI) last() string {
	s := f.sent()
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1]
}

func newTestService(t *testing.T) (*importer.Service, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	st, err := store.Open("sqlite3", filepath.Join(dir, "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := importer.NewService(st, importer.Options{
		StagingDir: filepath.Join(dir, "staging"),
		WorkDir:    filepath.Join(dir, "work"),
		Timeout:    time.Minute,
	})
	return svc, st
}

func loadRecords(t *testing.T, st *store.Store, rows []string) {
	t.Helper()

	gen, err := st.BeginImport(context.Background())
	require.NoError(t, err)
	require.NoError(t, gen.Insert(context.Background(), rows))
	require.NoError(t, gen.Commit(context.Background()))
}

func commandUpdate(text string) tgbotapi.Update {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmdLen = i
	}
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 7},
		Text:      text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: cmdLen},
		},
	}}
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 7},
		Text:      text,
	}}
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestHelpCommand(t *testing.T) {
	svc, _ := newTestService(t)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), commandUpdate("/help"))

	require.Len(t, api.sent(), 1)
	assert.Contains(t, api.last(), "/search")
}

func TestPlainTextGetsHelp(t *testing.T) {
	svc, _ := newTestService(t)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), textUpdate("hello there"))

	assert.Contains(t, api.last(), "/search")
}

func TestUnknownCommand(t *testing.T) {
	svc, _ := newTestService(t)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), commandUpdate("/frobnicate"))

	assert.Contains(t, api.last(), "Unknown command")
}

func TestSearch_ReturnsMatches(t *testing.T) {
	svc, st := newTestService(t)
	loadRecords(t, st, []string{
		"alice, 555-0100, acme",
		"bob, 555-0101, globex",
	})
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), commandUpdate("/search alice"))

	replies := api.sent()
	require.Len(t, replies, 1)
	assert.Equal(t, "alice, 555-0100, acme", replies[0])
}

func TestSearch_ReportsOverflow(t *testing.T) {
	svc, st := newTestService(t)
	rows := make([]string, 25)
	for i := range rows {
		rows[i] = fmt.Sprintf("contact-%02d, acme", i)
	}
	loadRecords(t, st, rows)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), commandUpdate("/search acme"))

	replies := api.sent()
	require.Len(t, replies, 11)
	assert.Equal(t, "contact-00, acme", replies[0])
	assert.Equal(t, "contact-09, acme", replies[9])
	assert.Contains(t, replies[10], "15 more matches")
}

func TestSearch_NoMatches(t *testing.T) {
	svc, st := newTestService(t)
	loadRecords(t, st, []string{"alice, acme"})
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), commandUpdate("/search zzz"))

	assert.Contains(t, api.last(), "No matches")
}

func TestSearch_MissingKeyword(t *testing.T) {
	svc, _ := newTestService(t)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), commandUpdate("/search"))

	assert.Contains(t, api.last(), "Usage: /search")
}

func TestDocumentImport_EndToEnd(t *testing.T) {
	payload := zipBytes(t, map[string]string{
		"leads.csv": "name,phone\nalice,9.1E+9\nbob,12345\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="leads.zip"`)
		w.Write(payload)
	}))
	defer srv.Close()

	svc, st := newTestService(t)
	api := &fakeAPI{fileURL: srv.URL + "/leads.zip"}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 7},
		Document:  &tgbotapi.Document{FileID: "doc-1", FileName: "leads.zip"},
	}})
	b.Wait()

	assert.Contains(t, api.last(), "Import complete")
	assert.Contains(t, api.last(), "2 rows")

	rows, _, err := st.Search(context.Background(), "alice", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "alice, 9100000000", rows[0])
}

func TestDocumentImport_FileResolveError(t *testing.T) {
	svc, _ := newTestService(t)
	api := &fakeAPI{fileErr: fmt.Errorf("file not found")}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 7},
		Document:  &tgbotapi.Document{FileID: "doc-1"},
	}})

	assert.Contains(t, api.last(), "resend")
}

func TestLinkImport_BadURLReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	svc, _ := newTestService(t)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), textUpdate(srv.URL+"/gone.zip"))
	b.Wait()

	assert.Contains(t, api.last(), "IMP002")
}

func TestImport_RejectedWhileBusy(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()

	svc, _ := newTestService(t)
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	b.dispatch(context.Background(), textUpdate(srv.URL+"/slow.zip"))

	require.Eventually(t, svc.Busy, time.Second, 5*time.Millisecond)

	b.dispatch(context.Background(), textUpdate(srv.URL+"/second.zip"))

	assert.Contains(t, api.last(), "IMP001")

	close(release)
	b.Wait()
}

func TestHandleUpdate_InvalidJSON(t *testing.T) {
	svc, _ := newTestService(t)
	b := newBot(&fakeAPI{}, svc, 10)

	err := b.HandleUpdate(context.Background(), []byte("not json"))
	assert.Error(t, err)
}

func TestHandleUpdate_DispatchesCommand(t *testing.T) {
	svc, st := newTestService(t)
	loadRecords(t, st, []string{"alice, acme"})
	api := &fakeAPI{}
	b := newBot(api, svc, 10)

	payload := []byte(`{"update_id":1,"message":{"message_id":1,"chat":{"id":7},"text":"/search alice","entities":[{"type":"bot_command","offset":0,"length":7}]}}`)
	require.NoError(t, b.HandleUpdate(context.Background(), payload))

	assert.Contains(t, api.last(), "alice, acme")
}
