// Package handlers 本地 HTTP 桥：让没有图形界面的宿主（脚本、插件进程）驱动同步会话
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"collabClient/backend/internal/collab"
	"collabClient/backend/internal/editor"
	"collabClient/backend/internal/presence"
)

type Bridge struct {
	sess *collab.Session
	ed   *editor.Headless
}

func NewBridge(sess *collab.Session, ed *editor.Headless) *Bridge {
	return &Bridge{sess: sess, ed: ed}
}

type contentRequest struct {
	Content *string `json:"content" binding:"required"`
}

type titleRequest struct {
	Title *string `json:"title" binding:"required"`
}

type languageRequest struct {
	Language string `json:"language" binding:"required"`
}

type cursorRequest struct {
	Line   int `json:"line" binding:"min=1"`
	Column int `json:"column" binding:"min=1"`
}

// NewRouter 注册桥接路由
func NewRouter(b *Bridge) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		// 本地页面可能是 file:// 打开的，Origin 为 null
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ok",
		})
	})
	doc := r.Group("/doc")
	{
		doc.GET("", b.GetDocument)
		doc.PUT("/content", b.PutContent)
		doc.PUT("/title", b.PutTitle)
		doc.PUT("/language", b.PutLanguage)
		doc.POST("/cursor", b.PostCursor)
		doc.POST("/format", b.PostFormat)
		doc.GET("/decorations", b.GetDecorations)
		doc.GET("/roster", b.GetRoster)
		doc.GET("/languages", b.GetLanguages)
	}
	return r
}

func (b *Bridge) GetDocument(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"docId":         b.sess.DocID(),
		"participantId": b.sess.ParticipantID(),
		"title":         b.sess.Title(),
		"language":      b.sess.Language(),
		"content":       b.sess.Content(),
		"version":       b.sess.Version(),
		"connection":    b.sess.ConnectionState().String(),
	})
}

// PutContent 宿主提交编辑后的整篇文本，返回 diff 出的操作
func (b *Bridge) PutContent(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b.ed.SetContent(*req.Content)
	ops := b.sess.LocalChange(*req.Content)
	c.JSON(http.StatusOK, gin.H{
		"operations": ops,
		"version":    b.sess.Version(),
	})
}

func (b *Bridge) PutTitle(c *gin.Context) {
	var req titleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b.sess.SetTitle(*req.Title)
	c.JSON(http.StatusOK, gin.H{"title": *req.Title})
}

func (b *Bridge) PutLanguage(c *gin.Context) {
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !editor.KnownLanguage(req.Language) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown language " + req.Language})
		return
	}
	b.sess.SetLanguage(req.Language)
	c.JSON(http.StatusOK, gin.H{"language": req.Language})
}

func (b *Bridge) PostCursor(c *gin.Context) {
	var req cursorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b.ed.MoveCursor(presence.Cursor{Line: req.Line, Column: req.Column})
	sent := b.sess.CursorMoved()
	c.JSON(http.StatusOK, gin.H{"sent": sent})
}

// PostFormat 只登记请求，格式化在防抖之后执行
func (b *Bridge) PostFormat(c *gin.Context) {
	b.sess.RequestFormat()
	c.JSON(http.StatusAccepted, gin.H{"message": "format scheduled"})
}

func (b *Bridge) GetDecorations(c *gin.Context) {
	decs := b.sess.Decorations()
	if decs == nil {
		decs = []presence.Decoration{}
	}
	c.JSON(http.StatusOK, gin.H{"decorations": decs})
}

func (b *Bridge) GetRoster(c *gin.Context) {
	users := b.sess.Roster()
	if users == nil {
		users = []presence.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (b *Bridge) GetLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"languages": editor.Languages, "default": editor.DefaultLanguage})
}
