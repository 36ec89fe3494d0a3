package serve

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yylt/ocrmux/mux"
	"github.com/yylt/ocrmux/pkg"
	"github.com/yylt/ocrmux/pkg/encode"
	"github.com/yylt/ocrmux/pkg/store"
	"k8s.io/klog/v2"
)

const (
	defaultTitle = "OCR Assistant"

	// uploads through the json api are kept in memory
	DefaultMaxUpload = 32 << 20
)

//go:embed templates/*.html
var templates embed.FS

type Conf struct {
	// logo image shown next to the title, optional
	Logo  string
	Title string
	// largest accepted image in bytes, DefaultMaxUpload when zero
	MaxUpload int64
}

type Serve struct {
	e *gin.Engine

	set *mux.Set
	st  *store.Store

	title     string
	logo      template.URL
	maxUpload int64
}

type backendView struct {
	Name  string `json:"name"`
	Model string `json:"model"`
	Index int    `json:"index"`
}

type page struct {
	Title    string
	Logo     template.URL
	Backends []backendView
	Selected string
	Upload   *store.Upload

	Result string
	Error  string
	Raw    string
}

type ocrResp struct {
	Backend string `json:"backend"`
	Model   string `json:"model"`
	Text    string `json:"text"`
}

type errResp struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
}

func New(ctx context.Context, cfg *Conf, set *mux.Set, st *store.Store) *Serve {
	if cfg == nil {
		cfg = &Conf{}
	}
	s := &Serve{
		e:     gin.Default(),
		set:   set,
		st:    st,
		title: cfg.Title,

		maxUpload: cfg.MaxUpload,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}
	if s.title == "" {
		s.title = defaultTitle
		if r, err := set.Get(""); err == nil {
			s.title = defaultTitle + " with " + r.Model()
		}
	}
	if cfg.Logo != "" {
		img, err := encode.Load(ctx, cfg.Logo)
		if err != nil {
			klog.Warningf("logo unavailable, use plain title: %v", err)
		} else {
			s.logo = template.URL(img.DataURL())
		}
	}
	s.e.SetHTMLTemplate(template.Must(template.ParseFS(templates, "templates/*.html")))
	s.probe()
	return s
}

func (s *Serve) probe() {
	s.e.GET("/", s.indexHandler)
	s.e.POST("/upload", s.uploadHandler)
	s.e.GET("/images/:id", s.imageHandler)
	s.e.POST("/ocr", s.ocrHandler)
	s.e.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	v1group := s.e.Group("/api/v1")
	v1group.GET("/backends", s.backendsHandler)
	v1group.POST("/ocr", s.apiOcrHandler)
}

func (s *Serve) Handler() http.Handler {
	return s.e
}

// Run serves on addr until ctx is done.
func (s *Serve) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.e,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			klog.Errorf("shutdown server failed: %v", err)
		}
	}()
	klog.Infof("listen on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Serve) newPage() *page {
	p := &page{
		Title: s.title,
		Logo:  s.logo,
	}
	for _, r := range s.set.List() {
		p.Backends = append(p.Backends, backendView{Name: r.Name(), Model: r.Model(), Index: r.Index()})
	}
	return p
}

func (s *Serve) render(c *gin.Context, code int, p *page) {
	c.HTML(code, "index.html", p)
}

func (s *Serve) indexHandler(c *gin.Context) {
	p := s.newPage()
	id := c.Query("id")
	if id == "" {
		s.render(c, http.StatusOK, p)
		return
	}
	up, err := s.st.Get(c.Request.Context(), id)
	if err != nil {
		p.Error = err.Error()
		s.render(c, http.StatusNotFound, p)
		return
	}
	p.Upload = up
	s.render(c, http.StatusOK, p)
}

func (s *Serve) uploadHandler(c *gin.Context) {
	p := s.newPage()
	fh, err := c.FormFile("file")
	if err != nil {
		p.Error = "no file uploaded: " + err.Error()
		s.render(c, http.StatusBadRequest, p)
		return
	}
	if err = s.checkSize(fh); err != nil {
		p.Error = err.Error()
		s.render(c, httpStatus(err), p)
		return
	}
	f, err := fh.Open()
	if err != nil {
		p.Error = err.Error()
		s.render(c, http.StatusBadRequest, p)
		return
	}
	defer f.Close()

	up, err := s.st.Save(c.Request.Context(), fh.Filename, f)
	if err != nil {
		klog.Errorf("save upload failed: %v", err)
		p.Error = err.Error()
		code := http.StatusInternalServerError
		if errors.Is(err, pkg.ErrUnsupportedImage) {
			code = http.StatusBadRequest
		}
		s.render(c, code, p)
		return
	}
	c.Redirect(http.StatusSeeOther, "/?id="+up.ID)
}

func (s *Serve) imageHandler(c *gin.Context) {
	up, err := s.st.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.AbortWithError(http.StatusNotFound, err) //nolint: errcheck
		return
	}
	data, err := s.st.Read(c.Request.Context(), up)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err) //nolint: errcheck
		return
	}
	c.Data(http.StatusOK, encode.DetectMIME(up.Name, data), data)
}

func (s *Serve) ocrHandler(c *gin.Context) {
	var (
		p       = s.newPage()
		ctx     = c.Request.Context()
		backend = c.PostForm("backend")
	)
	p.Selected = backend

	up, err := s.st.Get(ctx, c.PostForm("id"))
	if err != nil {
		p.Error = err.Error()
		s.render(c, http.StatusNotFound, p)
		return
	}
	p.Upload = up

	img, err := encode.Load(ctx, up.Path)
	if err != nil {
		klog.Errorf("load upload %s failed: %v", up.ID, err)
		p.Error = err.Error()
		s.render(c, http.StatusInternalServerError, p)
		return
	}
	r, text, err := s.recognize(ctx, backend, img)
	if err != nil {
		p.Error = err.Error()
		p.Raw, _ = pkg.RawBody(err)
		s.render(c, httpStatus(err), p)
		return
	}
	p.Selected = r.Name()
	p.Result = Present(text)
	s.render(c, http.StatusOK, p)
}

func (s *Serve) backendsHandler(c *gin.Context) {
	data := s.newPage().Backends
	if data == nil {
		data = []backendView{}
	}
	c.JSON(http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   data,
	})
}

func (s *Serve) apiOcrHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, &errResp{Error: "no file uploaded: " + err.Error()})
		return
	}
	if !encode.Supported(fh.Filename) {
		c.JSON(http.StatusBadRequest, &errResp{Error: pkg.ErrUnsupportedImage.Error()})
		return
	}
	raw, err := s.readUpload(fh)
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, pkg.ErrTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		c.JSON(code, &errResp{Error: err.Error()})
		return
	}

	r, text, err := s.recognize(c.Request.Context(), c.PostForm("backend"), encode.FromBytes(fh.Filename, raw))
	if err != nil {
		body, _ := pkg.RawBody(err)
		c.JSON(httpStatus(err), &errResp{
			Error:  err.Error(),
			Status: pkg.StatusCode(err),
			Body:   body,
		})
		return
	}
	c.JSON(http.StatusOK, &ocrResp{
		Backend: r.Name(),
		Model:   r.Model(),
		Text:    Present(text),
	})
}

func (s *Serve) recognize(ctx context.Context, backend string, img *encode.Image) (mux.Recognizer, string, error) {
	r, err := s.set.Get(backend)
	if err != nil {
		return nil, "", err
	}
	start := time.Now()
	text, err := r.Recognize(ctx, img)
	if err != nil {
		klog.Errorf("backend '%s' recognize %s failed: %v", r.Name(), img.Name, err)
		return r, "", err
	}
	klog.Infof("backend '%s' recognized %s in %v, %d chars", r.Name(), img.Name, time.Since(start), len(text))
	return r, text, nil
}

func (s *Serve) checkSize(fh *multipart.FileHeader) error {
	if fh.Size > s.maxUpload {
		return fmt.Errorf("%w: '%s' has %d bytes, limit %d", pkg.ErrTooLarge, fh.Filename, fh.Size, s.maxUpload)
	}
	return nil
}

// readUpload reads the whole file, an image over the limit is an error rather than cut.
func (s *Serve) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	if err := s.checkSize(fh); err != nil {
		return nil, err
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw, err := io.ReadAll(io.LimitReader(f, s.maxUpload+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > s.maxUpload {
		return nil, fmt.Errorf("%w: '%s' exceeds %d bytes", pkg.ErrTooLarge, fh.Filename, s.maxUpload)
	}
	return raw, nil
}
