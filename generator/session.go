package generator

import (
	"context"
	"sync"
	"time"

	"coze_note_generator/coze"
)

// Session 持有一次表单会话的输入、生成结果和运行标志。
// 文案与图片各自有独立的忙碌标志，互不阻塞；同一阶段在进行中时
// 再次触发会被 ErrBusy 拒绝，避免并发写入互相覆盖。
type Session struct {
	ID        string
	CreatedAt time.Time

	agent *Agent

	mu          sync.Mutex
	form        Form
	note        Note
	warning     string
	errMsg      string
	contentBusy bool
	imagesBusy  bool
}

// State 是会话的一份只读快照，供展示层消费。
type State struct {
	Title             string   `json:"title"`
	Body              string   `json:"body"`
	Images            []string `json:"images"`
	Warning           string   `json:"warning,omitempty"`
	Error             string   `json:"error,omitempty"`
	GeneratingContent bool     `json:"generating_content"`
	GeneratingImages  bool     `json:"generating_images"`
}

// NewSession 创建会话，尚未开始生成。
func NewSession(id string, form Form, agent *Agent) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		agent:     agent,
		form:      form,
	}
}

// Snapshot returns a copy of the current display state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := make([]string, len(s.note.Images))
	copy(images, s.note.Images)
	return State{
		Title:             s.note.Title,
		Body:              s.note.Body,
		Images:            images,
		Warning:           s.warning,
		Error:             s.errMsg,
		GeneratingContent: s.contentBusy,
		GeneratingImages:  s.imagesBusy,
	}
}

// Images returns the URLs of the generated images.
func (s *Session) Images() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	images := make([]string, len(s.note.Images))
	copy(images, s.note.Images)
	return images
}

// Generate 执行一次完整的生成：校验表单，生成文案，随后（如有图片）
// 生成图片。文案失败会中止运行，不再尝试图片；图片阶段的部分上传
// 失败只产生警告。
func (s *Session) Generate(ctx context.Context) error {
	s.mu.Lock()
	s.errMsg = ""
	s.warning = ""
	form := s.form
	s.mu.Unlock()

	if err := form.Validate(); err != nil {
		s.setError(err)
		return err
	}

	if err := s.runContent(ctx, form); err != nil {
		return err
	}
	if len(form.Images) == 0 {
		return nil
	}
	return s.runImages(ctx, form, false)
}

// RegenerateContent 只重新生成文案，不重新校验整个表单。
func (s *Session) RegenerateContent(ctx context.Context) error {
	s.mu.Lock()
	form := s.form
	s.mu.Unlock()
	return s.runContent(ctx, form)
}

// RegenerateImages 只重新生成图片。与首次生成不同，这里提取不到任何
// URL 视为失败，而不是保留旧图静默返回。
func (s *Session) RegenerateImages(ctx context.Context) error {
	s.mu.Lock()
	form := s.form
	s.mu.Unlock()
	if len(form.Images) == 0 {
		s.setError(ErrNoImages)
		return ErrNoImages
	}
	return s.runImages(ctx, form, true)
}

func (s *Session) runContent(ctx context.Context, form Form) error {
	s.mu.Lock()
	if s.contentBusy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.contentBusy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.contentBusy = false
		s.mu.Unlock()
	}()

	message, err := s.agent.GenerateContent(ctx, form)
	if err != nil {
		s.setError(err)
		return err
	}

	// 空结果不是错误，但也不能覆盖已有的好结果。
	if message != "" {
		title, body := coze.SplitTitleBody(message)
		s.mu.Lock()
		s.note.Title = title
		s.note.Body = body
		s.mu.Unlock()
	}
	return nil
}

func (s *Session) runImages(ctx context.Context, form Form, regenerate bool) error {
	s.mu.Lock()
	if s.imagesBusy {
		s.mu.Unlock()
		return ErrBusy
	}
	s.imagesBusy = true
	// 上一轮遗留的警告随新一轮开始作废。
	s.warning = ""
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.imagesBusy = false
		s.mu.Unlock()
	}()

	urls, warning, err := s.agent.GenerateImages(ctx, form)
	if warning != "" {
		s.mu.Lock()
		s.warning = warning
		s.mu.Unlock()
	}
	if err != nil {
		s.setError(err)
		return err
	}

	if len(urls) == 0 {
		if regenerate {
			s.setError(ErrNoImagesProduced)
			return ErrNoImagesProduced
		}
		// 首次生成提取不到 URL 只警告，保留此前的图片。
		s.mu.Lock()
		if s.warning == "" {
			s.warning = "未能从响应中提取到任何图片URL"
		}
		s.mu.Unlock()
		return nil
	}

	s.mu.Lock()
	s.note.Images = urls
	s.mu.Unlock()
	return nil
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	s.errMsg = err.Error()
	s.mu.Unlock()
}
