// Package handlers 实现分析服务的 HTTP 接口
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/haeter525/quark-engine/internal/apkinfo"
	"github.com/haeter525/quark-engine/internal/model"
	"github.com/haeter525/quark-engine/internal/service"
)

// AnalysisHandler 分析任务接口
type AnalysisHandler struct {
	service *service.AnalysisService
	logger  *logrus.Logger
}

// NewAnalysisHandler 创建分析接口处理器
func NewAnalysisHandler(svc *service.AnalysisService, logger *logrus.Logger) *AnalysisHandler {
	return &AnalysisHandler{service: svc, logger: logger}
}

// SubmitAnalysis POST /api/v1/analyses 提交分析任务
func (h *AnalysisHandler) SubmitAnalysis(c *gin.Context) {
	var req struct {
		Path string `json:"path" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.service.Analyze(c.Request.Context(), req.Path)
	if err != nil {
		status := http.StatusInternalServerError
		c.JSON(status, gin.H{"error": err.Error(), "report": report})
		return
	}

	c.JSON(http.StatusOK, report)
}

// ListAnalyses GET /api/v1/analyses 分页列出报告
func (h *AnalysisHandler) ListAnalyses(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	reports, total, err := h.service.ListReports((page-1)*size, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"total": total, "reports": reports})
}

// GetAnalysis GET /api/v1/analyses/:id 查询单个报告
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	report, err := h.service.GetReport(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// facade 取出任务对应的活跃提取引擎
func (h *AnalysisHandler) facade(c *gin.Context) (apkinfo.Apkinfo, bool) {
	info, err := h.service.Facade(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return info, true
}

// GetPermissions GET /api/v1/analyses/:id/permissions
func (h *AnalysisHandler) GetPermissions(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	permissions, err := info.Permissions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"permissions": permissions})
}

// GetMethods GET /api/v1/analyses/:id/methods?kind=all|api|custom
func (h *AnalysisHandler) GetMethods(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	var methods model.MethodSet
	var err error
	switch c.DefaultQuery("kind", "all") {
	case "api":
		methods, err = info.AndroidAPIs(ctx)
	case "custom":
		methods, err = info.CustomMethods(ctx)
	default:
		methods, err = info.AllMethods(ctx)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	type methodView struct {
		ClassName  string `json:"class_name"`
		Name       string `json:"name"`
		Descriptor string `json:"descriptor"`
	}

	views := make([]methodView, 0, len(methods))
	for _, m := range methods.Slice() {
		views = append(views, methodView{m.ClassName, m.Name, m.Descriptor})
	}

	c.JSON(http.StatusOK, gin.H{"count": len(views), "methods": views})
}

// GetStrings GET /api/v1/analyses/:id/strings
func (h *AnalysisHandler) GetStrings(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	strs, err := info.GetStrings(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(strs), "strings": strs})
}

// findMethod 按查询参数定位方法
func (h *AnalysisHandler) findMethod(c *gin.Context, info apkinfo.Apkinfo, prefix string) (*model.MethodObject, bool) {
	method, err := info.FindMethod(
		c.Request.Context(),
		c.Query(prefix+"class"),
		c.Query(prefix+"name"),
		c.Query(prefix+"descriptor"),
	)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	if method == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "method not found"})
		return nil, false
	}
	return method, true
}

// FindMethod GET /api/v1/analyses/:id/method?class=&name=&descriptor=
func (h *AnalysisHandler) FindMethod(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	method, ok := h.findMethod(c, info, "")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"class_name": method.ClassName,
		"name":       method.Name,
		"descriptor": method.Descriptor,
	})
}

// GetXrefs GET /api/v1/analyses/:id/xrefs?direction=upper|lower&class=&name=&descriptor=
func (h *AnalysisHandler) GetXrefs(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	method, ok := h.findMethod(c, info, "")
	if !ok {
		return
	}

	ctx := c.Request.Context()

	if c.DefaultQuery("direction", "upper") == "lower" {
		callSites, err := info.Lowerfunc(ctx, method)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		type callSiteView struct {
			Method string `json:"method"`
			Offset int64  `json:"offset"`
		}
		views := make([]callSiteView, 0, len(callSites))
		for _, site := range callSites {
			views = append(views, callSiteView{site.Method.FullName(), site.Offset})
		}
		c.JSON(http.StatusOK, gin.H{"callees": views})
		return
	}

	callers, err := info.Upperfunc(ctx, method)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	names := make([]string, 0, len(callers))
	for _, caller := range callers.Slice() {
		names = append(names, caller.FullName())
	}
	c.JSON(http.StatusOK, gin.H{"callers": names})
}

// GetBytecode GET /api/v1/analyses/:id/bytecode?class=&name=&descriptor=
func (h *AnalysisHandler) GetBytecode(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	method, ok := h.findMethod(c, info, "")
	if !ok {
		return
	}

	instructions, err := info.GetMethodBytecode(c.Request.Context(), method)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"instructions": instructions})
}

// GetWrapperEvidence POST /api/v1/analyses/:id/wrapper
func (h *AnalysisHandler) GetWrapperEvidence(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	type methodQuery struct {
		Class      string `json:"class"`
		Name       string `json:"name"`
		Descriptor string `json:"descriptor"`
	}
	var req struct {
		Parent methodQuery `json:"parent"`
		First  methodQuery `json:"first"`
		Second methodQuery `json:"second"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()

	resolve := func(q methodQuery) (*model.MethodObject, error) {
		return info.FindMethod(ctx, q.Class, q.Name, q.Descriptor)
	}

	parent, err := resolve(req.Parent)
	if err != nil || parent == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "parent method not found"})
		return
	}
	first, err := resolve(req.First)
	if err != nil || first == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "first method not found"})
		return
	}
	second, err := resolve(req.Second)
	if err != nil || second == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "second method not found"})
		return
	}

	evidence, err := info.GetWrapperSmali(ctx, parent, first, second)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, evidence)
}

// GetClassHierarchy GET /api/v1/analyses/:id/hierarchy?class=&direction=super|sub
func (h *AnalysisHandler) GetClassHierarchy(c *gin.Context) {
	info, ok := h.facade(c)
	if !ok {
		return
	}

	className := c.Query("class")
	if className == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "class is required"})
		return
	}

	ctx := c.Request.Context()

	var classes []string
	var err error
	if c.DefaultQuery("direction", "super") == "sub" {
		classes, err = info.SubclassesOf(ctx, className)
	} else {
		classes, err = info.SuperclassesOf(ctx, className)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"classes": classes})
}
