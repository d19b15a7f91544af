package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"coze_note_generator/coze"
)

type countingBackend struct {
	calls   int32
	message string
	err     error
}

func (b *countingBackend) Complete(context.Context, string) (string, error) {
	atomic.AddInt32(&b.calls, 1)
	return b.message, b.err
}

// blockingBackend parks Complete until released, signalling entry.
type blockingBackend struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) Complete(ctx context.Context, _ string) (string, error) {
	close(b.entered)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return "标题\n正文", nil
}

func newTestAgent(t *testing.T, backend ContentBackend, client *coze.Client) *Agent {
	t.Helper()
	if client == nil {
		client = coze.NewClient("http://127.0.0.1:0", "token")
	}
	agent, err := NewAgent(client, backend, "image-bot", "123456789", nil)
	require.NoError(t, err)
	return agent
}

func TestGenerateRequiresContentType(t *testing.T) {
	backend := &countingBackend{message: "标题\n正文"}
	sess := NewSession("s1", Form{ProductInfo: "能量棒"}, newTestAgent(t, backend, nil))

	err := sess.Generate(context.Background())
	assert.ErrorIs(t, err, ErrContentTypeRequired)
	assert.EqualValues(t, 0, atomic.LoadInt32(&backend.calls), "validation failure must not reach the network")
	assert.Equal(t, ErrContentTypeRequired.Error(), sess.Snapshot().Error)
}

func TestGenerateRejectsMoreThanNineImages(t *testing.T) {
	backend := &countingBackend{message: "标题\n正文"}
	form := Form{ContentType: TypeReview}
	for i := 0; i < 10; i++ {
		form.Images = append(form.Images, Image{Name: fmt.Sprintf("%d.png", i), Data: []byte{byte(i)}})
	}
	sess := NewSession("s1", form, newTestAgent(t, backend, nil))

	err := sess.Generate(context.Background())
	assert.ErrorIs(t, err, ErrTooManyImages)
	assert.EqualValues(t, 0, atomic.LoadInt32(&backend.calls))
}

func TestGenerateWithoutImagesSkipsImagePhase(t *testing.T) {
	backend := &countingBackend{message: "标题\n正文"}
	sess := NewSession("s1", Form{ContentType: TypeGuide}, newTestAgent(t, backend, nil))
	require.NoError(t, sess.Generate(context.Background()))

	state := sess.Snapshot()
	assert.Equal(t, "标题", state.Title)
	assert.Equal(t, "正文", state.Body)
	assert.Empty(t, state.Images)
	assert.False(t, state.GeneratingContent)
	assert.False(t, state.GeneratingImages)
}

func TestContentFailureHaltsRun(t *testing.T) {
	backend := &countingBackend{err: fmt.Errorf("bot exploded")}
	form := Form{ContentType: TypeReview, Images: []Image{{Name: "a.png", Data: []byte("a")}}}

	var uploads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&uploads, 1)
	}))
	defer srv.Close()

	sess := NewSession("s1", form, newTestAgent(t, backend, coze.NewClient(srv.URL, "token")))
	err := sess.Generate(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&uploads), "images must not be attempted after a content failure")
	assert.Equal(t, "bot exploded", sess.Snapshot().Error)
}

func TestEmptyContentDoesNotClobberPreviousResult(t *testing.T) {
	backend := &countingBackend{message: "旧标题\n旧正文"}
	sess := NewSession("s1", Form{ContentType: TypeRecommendation}, newTestAgent(t, backend, nil))
	require.NoError(t, sess.Generate(context.Background()))

	backend.message = ""
	require.NoError(t, sess.RegenerateContent(context.Background()))

	state := sess.Snapshot()
	assert.Equal(t, "旧标题", state.Title)
	assert.Equal(t, "旧正文", state.Body)
}

// fakeCoze serves the upload and chat endpoints for end-to-end runs.
// Uploads for file names listed in failUploads always fail with a non-zero
// envelope code.
type fakeCoze struct {
	t           *testing.T
	failUploads map[string]bool
	imageStream string

	mu            sync.Mutex
	imageRequests [][]byte
}

func (f *fakeCoze) recordedImageRequests() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.imageRequests...)
}

func (f *fakeCoze) setFailUploads(fail map[string]bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failUploads = fail
}

func (f *fakeCoze) failUpload(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failUploads[name]
}

func (f *fakeCoze) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files/upload", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("file")
		require.NoError(f.t, err)
		if f.failUpload(header.Filename) {
			fmt.Fprint(w, `{"code":500,"msg":"storage unavailable"}`)
			return
		}
		fmt.Fprintf(w, `{"code":0,"data":{"id":"id-%s"}}`, header.Filename)
	})
	mux.HandleFunc("/v3/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			BotID              string `json:"bot_id"`
			AdditionalMessages []struct {
				ContentType string `json:"content_type"`
				Content     string `json:"content"`
			} `json:"additional_messages"`
		}
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(f.t, req.AdditionalMessages, 1)
		if req.BotID == "image-bot" {
			require.Equal(f.t, "object_string", req.AdditionalMessages[0].ContentType)
			f.mu.Lock()
			f.imageRequests = append(f.imageRequests, []byte(req.AdditionalMessages[0].Content))
			f.mu.Unlock()
			fmt.Fprint(w, f.imageStream)
			return
		}
		fmt.Fprint(w, "data: {\"content\":\"文案标题\\n文案正文\"}\n")
	})
	return mux
}

func TestEndToEndPartialUploadFailure(t *testing.T) {
	fake := &fakeCoze{
		t:           t,
		failUploads: map[string]bool{"bad.png": true},
		imageStream: "data: {\"content\":\"![图片](https://x/gen1.png)\"}\n" +
			"data: {\"content\":\"'https://x/gen2.png' 'https://x/gen1.png'\"}\n",
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := coze.NewClient(srv.URL, "token", coze.WithBackoff(time.Millisecond, 5*time.Millisecond))
	backend := &CozeBackend{Client: client, BotID: "content-bot", UserID: "123456789", ConversationID: "conv-1"}
	agent := newTestAgent(t, backend, client)

	form := Form{
		ContentType: TypeRecommendation,
		ProductInfo: "保温杯",
		Images: []Image{
			{Name: "good.png", Data: []byte("good-bytes")},
			{Name: "bad.png", Data: []byte("bad-bytes")},
		},
	}
	sess := NewSession("s1", form, agent)
	require.NoError(t, sess.Generate(context.Background()))

	state := sess.Snapshot()
	assert.Equal(t, "文案标题", state.Title)
	assert.Equal(t, "文案正文", state.Body)
	// URLs accumulate across all stream lines and deduplicate.
	assert.Equal(t, []string{"https://x/gen1.png", "https://x/gen2.png"}, state.Images)
	assert.Contains(t, state.Warning, "1 张图片上传失败")
	assert.Empty(t, state.Error)

	// The image request must reference exactly the one successful upload.
	recorded := fake.recordedImageRequests()
	require.Len(t, recorded, 1)
	elements := gjson.ParseBytes(recorded[0]).Array()
	var imageIDs []string
	for _, el := range elements {
		if el.Get("type").String() == "image" {
			imageIDs = append(imageIDs, el.Get("file_id").String())
		}
	}
	assert.Equal(t, []string{"id-good.png"}, imageIDs)
	assert.Equal(t, "text", elements[0].Get("type").String())
	assert.Equal(t, "保温杯", elements[0].Get("text").String())
}

func TestAllUploadsFailedIsHardError(t *testing.T) {
	fake := &fakeCoze{
		t:           t,
		failUploads: map[string]bool{"a.png": true, "b.png": true},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := coze.NewClient(srv.URL, "token", coze.WithBackoff(time.Millisecond, 5*time.Millisecond))
	backend := &CozeBackend{Client: client, BotID: "content-bot", UserID: "123456789"}
	agent := newTestAgent(t, backend, client)

	form := Form{
		ContentType: TypeGuide,
		Images: []Image{
			{Name: "a.png", Data: []byte("a")},
			{Name: "b.png", Data: []byte("b")},
		},
	}
	sess := NewSession("s1", form, agent)
	err := sess.Generate(context.Background())
	assert.ErrorIs(t, err, ErrAllUploadsFailed)
	assert.Empty(t, fake.recordedImageRequests(), "generation must abort without calling the image bot")
}

func TestRegenerateImagesWithoutImages(t *testing.T) {
	backend := &countingBackend{message: "标题\n正文"}
	sess := NewSession("s1", Form{ContentType: TypeReview}, newTestAgent(t, backend, nil))
	assert.ErrorIs(t, sess.RegenerateImages(context.Background()), ErrNoImages)
}

func TestRegenerateImagesEmptyExtractionIsError(t *testing.T) {
	fake := &fakeCoze{
		t:           t,
		imageStream: "data: {\"content\":\"这次什么图也没有\"}\n",
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := coze.NewClient(srv.URL, "token", coze.WithBackoff(time.Millisecond, 5*time.Millisecond))
	backend := &CozeBackend{Client: client, BotID: "content-bot", UserID: "123456789"}
	agent := newTestAgent(t, backend, client)

	form := Form{ContentType: TypeReview, Images: []Image{{Name: "a.png", Data: []byte("a")}}}
	sess := NewSession("s1", form, agent)

	err := sess.RegenerateImages(context.Background())
	assert.ErrorIs(t, err, ErrNoImagesProduced)
}

func TestInitialGenerateEmptyExtractionOnlyWarns(t *testing.T) {
	fake := &fakeCoze{
		t:           t,
		imageStream: "data: {\"content\":\"没有链接\"}\n",
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := coze.NewClient(srv.URL, "token", coze.WithBackoff(time.Millisecond, 5*time.Millisecond))
	backend := &CozeBackend{Client: client, BotID: "content-bot", UserID: "123456789"}
	agent := newTestAgent(t, backend, client)

	form := Form{ContentType: TypeReview, Images: []Image{{Name: "a.png", Data: []byte("a")}}}
	sess := NewSession("s1", form, agent)

	require.NoError(t, sess.Generate(context.Background()))
	state := sess.Snapshot()
	assert.Empty(t, state.Error)
	assert.NotEmpty(t, state.Warning)
}

func TestRegenerateContentAdmissionGate(t *testing.T) {
	backend := &blockingBackend{entered: make(chan struct{}), release: make(chan struct{})}
	sess := NewSession("s1", Form{ContentType: TypeGuide}, newTestAgent(t, backend, nil))

	done := make(chan error, 1)
	go func() { done <- sess.RegenerateContent(context.Background()) }()

	select {
	case <-backend.entered:
	case <-time.After(time.Second):
		t.Fatal("first regenerate never started")
	}
	assert.ErrorIs(t, sess.RegenerateContent(context.Background()), ErrBusy)
	assert.True(t, sess.Snapshot().GeneratingContent)

	close(backend.release)
	require.NoError(t, <-done)
	assert.False(t, sess.Snapshot().GeneratingContent)

	// Gate reopens once the run finishes.
	reentered := make(chan struct{})
	backend.entered = reentered
	backend.release = make(chan struct{})
	close(backend.release)
	require.NoError(t, sess.RegenerateContent(context.Background()))
}

func TestRegenerateImagesClearsStaleWarning(t *testing.T) {
	fake := &fakeCoze{
		t:           t,
		failUploads: map[string]bool{"bad.png": true},
		imageStream: "data: {\"content\":\"'https://x/gen1.png'\"}\n",
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	client := coze.NewClient(srv.URL, "token", coze.WithBackoff(time.Millisecond, 5*time.Millisecond))
	backend := &CozeBackend{Client: client, BotID: "content-bot", UserID: "123456789"}
	agent := newTestAgent(t, backend, client)

	form := Form{
		ContentType: TypeRecommendation,
		Images: []Image{
			{Name: "good.png", Data: []byte("good-bytes")},
			{Name: "bad.png", Data: []byte("bad-bytes")},
		},
	}
	sess := NewSession("s1", form, agent)
	require.NoError(t, sess.Generate(context.Background()))
	require.Contains(t, sess.Snapshot().Warning, "1 张图片上传失败")

	// 下一轮所有上传都成功，上一轮的警告不应残留。
	fake.setFailUploads(nil)
	require.NoError(t, sess.RegenerateImages(context.Background()))

	state := sess.Snapshot()
	assert.Empty(t, state.Warning)
	assert.Empty(t, state.Error)
	assert.Equal(t, []string{"https://x/gen1.png"}, state.Images)
}

func TestRegenerateImagesAdmissionGate(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/files/upload":
			once.Do(func() { close(entered) })
			<-release
			fmt.Fprint(w, `{"code":0,"data":{"id":"file-1"}}`)
		case "/v3/chat":
			fmt.Fprint(w, "data: {\"content\":\"'https://x/a.png'\"}\n")
		}
	}))
	defer srv.Close()

	client := coze.NewClient(srv.URL, "token", coze.WithBackoff(time.Millisecond, 5*time.Millisecond))
	backend := &countingBackend{message: "标题\n正文"}
	agent := newTestAgent(t, backend, client)

	form := Form{ContentType: TypeReview, Images: []Image{{Name: "a.png", Data: []byte("a")}}}
	sess := NewSession("s1", form, agent)

	done := make(chan error, 1)
	go func() { done <- sess.RegenerateImages(context.Background()) }()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first image run never reached the upload")
	}
	assert.ErrorIs(t, sess.RegenerateImages(context.Background()), ErrBusy)
	assert.True(t, sess.Snapshot().GeneratingImages)
	assert.False(t, sess.Snapshot().GeneratingContent, "image runs must not block the content gate")

	close(release)
	require.NoError(t, <-done)

	state := sess.Snapshot()
	assert.False(t, state.GeneratingImages)
	assert.Equal(t, []string{"https://x/a.png"}, state.Images)
}

func TestBuildInstruction(t *testing.T) {
	form := Form{
		ContentType:    TypeRecommendation,
		ProductInfo:    "保温杯 500ml",
		SellingPoints:  "24小时保温",
		TargetAudience: "通勤上班族",
	}
	got := BuildInstruction(form)
	assert.Equal(t, "文案描述: 保温杯 500ml, 商品核心卖点: 24小时保温, 商品适用人群: 通勤上班族, 笔记生成需求： recommendation", got)

	assert.Equal(t, "生成商品图片", BuildImagePrompt(Form{}))
	assert.Equal(t, "保温杯", BuildImagePrompt(Form{ProductInfo: "保温杯"}))
}
