package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"nexus/internal"
	"nexus/internal/config"
	"nexus/internal/pipeline"
	"nexus/internal/storage"
	"nexus/internal/template"
	"nexus/internal/util"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Server exposes the batch pipeline over HTTP. Uploads are processed
// synchronously: the POST response already carries the reconciled rows.
type Server struct {
	cfg       config.Config
	db        *storage.DB
	processor *pipeline.Processor
	log       *slog.Logger
	router    *gin.Engine
}

func New(cfg config.Config, db *storage.DB, processor *pipeline.Processor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{cfg: cfg, db: db, processor: processor, log: log}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.healthz)
	r.GET("/api/templates", s.listTemplates)
	r.GET("/api/batches", s.listBatches)
	r.POST("/api/batches", s.createBatch)
	r.GET("/api/batches/:id", s.getBatch)
	r.GET("/api/batches/:id/export.xlsx", s.exportItemsXLSX)
	r.GET("/api/batches/:id/export.csv", s.exportItemsCSV)
	r.GET("/api/batches/:id/export-dpr.xlsx", s.exportDPRXLSX)

	s.router = r
	return s
}

// Handler returns the router for serving and for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTPAddr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info("server.listening", "addr", s.cfg.HTTPAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("server.request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listTemplates(c *gin.Context) {
	tpls := template.List()
	out := make([]gin.H, 0, len(tpls))
	for _, tpl := range tpls {
		out = append(out, gin.H{"id": tpl.ID, "name": tpl.Name, "mode": tpl.Mode})
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

func (s *Server) listBatches(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	batches, err := s.db.ListRecentBatches(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"batches": batches})
}

func (s *Server) createBatch(c *gin.Context) {
	if s.cfg.MaxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(s.cfg.MaxUploadMB)<<20)
	}

	form, err := c.MultipartForm()
	if err != nil {
		status := http.StatusBadRequest
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": "invalid upload: " + err.Error()})
		return
	}

	tplID := s.cfg.DefaultTemplate
	if v := form.Value["template"]; len(v) > 0 && strings.TrimSpace(v[0]) != "" {
		tplID = strings.TrimSpace(v[0])
	}
	tpl, err := template.Get(tplID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}

	batchID, err := s.processor.NewBatch(tpl, "upload")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	dir := filepath.Join(s.cfg.UploadDir, batchID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	paths := make([]string, 0, len(files))
	for _, fh := range files {
		dst := uniquePath(dir, util.SanitizeFilename(fh.Filename, "archivo.pdf"))
		if err := c.SaveUploadedFile(fh, dst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		paths = append(paths, dst)
	}

	res, err := s.processor.ProcessFiles(c.Request.Context(), batchID, tpl, paths)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "batchId": batchID})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batchId":   res.BatchID,
		"template":  tpl.ID,
		"files":     res.Files,
		"summary":   res.Summary,
		"itemCount": res.ItemCount(),
	})
}

type documentView struct {
	internal.DocumentRow
	Failures []internal.PageFailure `json:"failures,omitempty"`
}

func (s *Server) getBatch(c *gin.Context) {
	id := c.Param("id")
	batch, err := s.db.GetBatch(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	docs, err := s.db.ListDocuments(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		failures, err := s.db.DocumentFailures(doc.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		views = append(views, documentView{DocumentRow: doc, Failures: failures})
	}

	items, err := s.db.GetBatchItems(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	summary, err := s.db.GetBatchSummaries(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"batch":     batch,
		"documents": views,
		"items":     items,
		"summary":   summary,
	})
}

func (s *Server) exportItemsXLSX(c *gin.Context) {
	items, summary, ok := s.batchRows(c)
	if !ok {
		return
	}
	f, err := pipeline.BuildItemsWorkbook(items, summary)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sendAttachment(c, pipeline.DefaultExportName, xlsxContentType, buf.Bytes())
}

func (s *Server) exportItemsCSV(c *gin.Context) {
	items, _, ok := s.batchRows(c)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pipeline.WriteItemsCSV(&buf, items); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sendAttachment(c, pipeline.CSVExportName, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) exportDPRXLSX(c *gin.Context) {
	items, _, ok := s.batchRows(c)
	if !ok {
		return
	}
	f, err := pipeline.BuildDPRWorkbook(items)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sendAttachment(c, pipeline.DPRExportName, xlsxContentType, buf.Bytes())
}

// batchRows loads the stored rows for the batch in the :id param,
// answering 404/500 itself when it cannot.
func (s *Server) batchRows(c *gin.Context) ([]internal.ItemRow, []internal.SummaryRow, bool) {
	id := c.Param("id")
	batch, err := s.db.GetBatch(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	if batch == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return nil, nil, false
	}
	items, err := s.db.GetBatchItems(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	summary, err := s.db.GetBatchSummaries(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, nil, false
	}
	return items, summary, true
}

func sendAttachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}

// uniquePath keeps same-named uploads in one batch from overwriting
// each other.
func uniquePath(dir, name string) string {
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err != nil {
		return dst
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 2; ; i++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
		if _, err := os.Stat(dst); err != nil {
			return dst
		}
	}
}
