package app

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// HTTPServer registers the REST surface on an Echo instance. Handlers
// decode and respond; everything else lives in the Service.
type HTTPServer struct {
	service    *Service
	ws         http.Handler
	corsOrigin string
	logger     *log.Logger
}

func NewHTTPServer(service *Service, ws http.Handler, corsOrigin string, logger *log.Logger) *HTTPServer {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &HTTPServer{service: service, ws: ws, corsOrigin: corsOrigin, logger: logger}
}

func (s *HTTPServer) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{s.corsOrigin},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, echo.HeaderXRequestID},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.WithFields(log.Fields{
				"method":      v.Method,
				"uri":         v.URI,
				"status":      v.Status,
				"duration_ms": v.Latency.Milliseconds(),
			}).Info("request")
			return nil
		},
	}))

	e.GET("/api/health", s.health)
	e.HEAD("/api/health", s.health)
	e.GET("/api/ready", s.ready)

	e.POST("/api/auth/signup", s.signUp)
	e.POST("/api/auth/signin", s.signIn)
	e.POST("/api/auth/refresh", s.refresh)
	e.POST("/api/auth/logout", s.logout)

	if s.ws != nil {
		e.GET("/ws", echo.WrapHandler(s.ws))
	}

	api := e.Group("/api", s.requireSession)
	api.GET("/boards", s.listBoards)
	api.POST("/boards", s.createBoard)
	api.GET("/boards/:boardId", s.getBoard)
	api.PUT("/boards/:boardId", s.renameBoard)
	api.DELETE("/boards/:boardId", s.deleteBoard)

	api.GET("/boards/:boardId/members", s.listMembers)
	api.POST("/boards/:boardId/members", s.addMember)
	api.PUT("/boards/:boardId/members/:userId", s.updateMemberRole)
	api.DELETE("/boards/:boardId/members/:userId", s.removeMember)

	api.POST("/boards/:boardId/lists", s.createList)
	api.PUT("/lists/:listId", s.renameList)
	api.DELETE("/lists/:listId", s.deleteList)
	api.PUT("/lists/:listId/position", s.reorderLists)

	api.GET("/lists/:listId/tasks", s.listTasks)
	api.POST("/lists/:listId/tasks", s.createTask)
	api.GET("/tasks/:taskId", s.getTask)
	api.PATCH("/tasks/:taskId", s.updateTask)
	api.DELETE("/tasks/:taskId", s.deleteTask)
	api.PUT("/tasks/:taskId/move", s.moveTask)

	api.GET("/tasks/:taskId/comments", s.listComments)
	api.POST("/tasks/:taskId/comments", s.addComment)

	api.GET("/boards/:boardId/labels", s.listLabels)
	api.POST("/boards/:boardId/labels", s.createLabel)
	api.DELETE("/boards/:boardId/labels/:labelId", s.deleteLabel)
	api.PUT("/tasks/:taskId/labels/:labelId", s.attachLabel)
	api.DELETE("/tasks/:taskId/labels/:labelId", s.detachLabel)

	api.GET("/boards/:boardId/activities", s.activities)

	api.GET("/tasks/:taskId/attachments", s.listAttachments)
	api.POST("/tasks/:taskId/attachments", s.createAttachment)
	api.GET("/attachments/:attachmentId/download", s.downloadAttachment)
	api.DELETE("/attachments/:attachmentId", s.deleteAttachment)
}

// --- envelope ---

func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, map[string]any{"success": true, "data": data})
}

func fail(c echo.Context, err error) error {
	status, code, message, details := mapError(err)
	body := map[string]any{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	return c.JSON(status, map[string]any{"success": false, "error": body})
}

func failBadBody(c echo.Context) error {
	return fail(c, errBadRequest("invalid JSON body"))
}

// --- session middleware ---

const sessionKey = "flowboard.session"

func (s *HTTPServer) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c.Request())
		if token == "" {
			return fail(c, errUnauthorized("Unauthorized"))
		}
		sess, err := s.service.SessionFromToken(token)
		if err != nil {
			return fail(c, err)
		}
		c.Set(sessionKey, sess)
		return next(c)
	}
}

func currentSession(c echo.Context) Session {
	sess, _ := c.Get(sessionKey).(Session)
	return sess
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}

// --- health ---

func (s *HTTPServer) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"sessions": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingSessions(ctx); err != nil {
		status = http.StatusServiceUnavailable
		checks["sessions"] = map[string]any{"status": "error", "error": err.Error()}
	}
	return c.JSON(status, map[string]any{"ok": status == http.StatusOK, "checks": checks})
}

// --- auth ---

func (s *HTTPServer) signUp(c echo.Context) error {
	var body struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	result, err := s.service.SignUp(c.Request().Context(), body.Name, body.Email, body.Password)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, result)
}

func (s *HTTPServer) signIn(c echo.Context) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	result, err := s.service.SignIn(c.Request().Context(), body.Email, body.Password)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, result)
}

func (s *HTTPServer) refresh(c echo.Context) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	result, err := s.service.Refresh(c.Request().Context(), body.RefreshToken)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, result)
}

func (s *HTTPServer) logout(c echo.Context) error {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = c.Bind(&body)
	if err := s.service.Logout(c.Request().Context(), body.RefreshToken); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

// --- boards ---

func (s *HTTPServer) listBoards(c echo.Context) error {
	boards, err := s.service.ListBoards(c.Request().Context(), currentSession(c))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, boards)
}

func (s *HTTPServer) createBoard(c echo.Context) error {
	var body struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	board, err := s.service.CreateBoard(c.Request().Context(), currentSession(c), body.Title)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, board)
}

func (s *HTTPServer) getBoard(c echo.Context) error {
	contents, err := s.service.GetBoard(c.Request().Context(), currentSession(c), c.Param("boardId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, contents)
}

func (s *HTTPServer) renameBoard(c echo.Context) error {
	var body struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	board, err := s.service.RenameBoard(c.Request().Context(), currentSession(c), c.Param("boardId"), body.Title)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, board)
}

func (s *HTTPServer) deleteBoard(c echo.Context) error {
	if err := s.service.DeleteBoard(c.Request().Context(), currentSession(c), c.Param("boardId")); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

// --- members ---

func (s *HTTPServer) listMembers(c echo.Context) error {
	members, err := s.service.ListMembers(c.Request().Context(), currentSession(c), c.Param("boardId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, members)
}

func (s *HTTPServer) addMember(c echo.Context) error {
	var body struct {
		UserID string `json:"userId"`
		Role   string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	member, err := s.service.AddMember(c.Request().Context(), currentSession(c), c.Param("boardId"), body.UserID, body.Role)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, member)
}

func (s *HTTPServer) updateMemberRole(c echo.Context) error {
	var body struct {
		Role string `json:"role"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	if err := s.service.UpdateMemberRole(c.Request().Context(), currentSession(c), c.Param("boardId"), c.Param("userId"), body.Role); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) removeMember(c echo.Context) error {
	if err := s.service.RemoveMember(c.Request().Context(), currentSession(c), c.Param("boardId"), c.Param("userId")); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

// --- lists ---

func (s *HTTPServer) createList(c echo.Context) error {
	var body struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	list, err := s.service.CreateList(c.Request().Context(), currentSession(c), c.Param("boardId"), body.Title)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, list)
}

func (s *HTTPServer) renameList(c echo.Context) error {
	var body struct {
		Title string `json:"title"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	list, err := s.service.RenameList(c.Request().Context(), currentSession(c), c.Param("listId"), body.Title)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, list)
}

func (s *HTTPServer) deleteList(c echo.Context) error {
	if err := s.service.DeleteList(c.Request().Context(), currentSession(c), c.Param("listId")); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) reorderLists(c echo.Context) error {
	var body struct {
		Position *int `json:"position"`
	}
	if err := c.Bind(&body); err != nil || body.Position == nil {
		return failBadBody(c)
	}
	lists, err := s.service.ReorderLists(c.Request().Context(), currentSession(c), c.Param("listId"), *body.Position)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, lists)
}

// --- tasks ---

func (s *HTTPServer) listTasks(c echo.Context) error {
	tasks, err := s.service.ListTasks(c.Request().Context(), currentSession(c), c.Param("listId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, tasks)
}

func (s *HTTPServer) createTask(c echo.Context) error {
	var body TaskInput
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	task, err := s.service.CreateTask(c.Request().Context(), currentSession(c), c.Param("listId"), body)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, task)
}

func (s *HTTPServer) getTask(c echo.Context) error {
	task, err := s.service.GetTask(c.Request().Context(), currentSession(c), c.Param("taskId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, task)
}

func (s *HTTPServer) updateTask(c echo.Context) error {
	var body TaskUpdateInput
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	task, err := s.service.UpdateTask(c.Request().Context(), currentSession(c), c.Param("taskId"), body)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, task)
}

func (s *HTTPServer) deleteTask(c echo.Context) error {
	if err := s.service.DeleteTask(c.Request().Context(), currentSession(c), c.Param("taskId")); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) moveTask(c echo.Context) error {
	var body struct {
		ToListID string `json:"toListId"`
		Position *int   `json:"position"`
	}
	if err := c.Bind(&body); err != nil || body.Position == nil {
		return failBadBody(c)
	}
	task, err := s.service.MoveTask(c.Request().Context(), currentSession(c), c.Param("taskId"), body.ToListID, *body.Position)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, task)
}

// --- comments ---

func (s *HTTPServer) listComments(c echo.Context) error {
	comments, err := s.service.ListComments(c.Request().Context(), currentSession(c), c.Param("taskId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, comments)
}

func (s *HTTPServer) addComment(c echo.Context) error {
	var body struct {
		Body string `json:"body"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	comment, err := s.service.AddComment(c.Request().Context(), currentSession(c), c.Param("taskId"), body.Body)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, comment)
}

// --- labels ---

func (s *HTTPServer) listLabels(c echo.Context) error {
	labels, err := s.service.ListLabels(c.Request().Context(), currentSession(c), c.Param("boardId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, labels)
}

func (s *HTTPServer) createLabel(c echo.Context) error {
	var body struct {
		Name  string `json:"name"`
		Color string `json:"color"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	label, err := s.service.CreateLabel(c.Request().Context(), currentSession(c), c.Param("boardId"), body.Name, body.Color)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, label)
}

func (s *HTTPServer) deleteLabel(c echo.Context) error {
	if err := s.service.DeleteLabel(c.Request().Context(), currentSession(c), c.Param("labelId"), c.Param("boardId")); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) attachLabel(c echo.Context) error {
	task, err := s.service.AttachLabel(c.Request().Context(), currentSession(c), c.Param("taskId"), c.Param("labelId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, task)
}

func (s *HTTPServer) detachLabel(c echo.Context) error {
	task, err := s.service.DetachLabel(c.Request().Context(), currentSession(c), c.Param("taskId"), c.Param("labelId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, task)
}

// --- activity feed ---

func (s *HTTPServer) activities(c echo.Context) error {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 0)
	feed, err := s.service.Activities(c.Request().Context(), currentSession(c), c.Param("boardId"), page, limit)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, feed)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

// --- attachments ---

func (s *HTTPServer) listAttachments(c echo.Context) error {
	attachments, err := s.service.ListAttachments(c.Request().Context(), currentSession(c), c.Param("taskId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, attachments)
}

func (s *HTTPServer) createAttachment(c echo.Context) error {
	var body struct {
		FileName    string `json:"fileName"`
		ContentType string `json:"contentType"`
		SizeBytes   int64  `json:"sizeBytes"`
	}
	if err := c.Bind(&body); err != nil {
		return failBadBody(c)
	}
	attachment, err := s.service.CreateAttachment(c.Request().Context(), currentSession(c), c.Param("taskId"), body.FileName, body.ContentType, body.SizeBytes)
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusCreated, attachment)
}

func (s *HTTPServer) downloadAttachment(c echo.Context) error {
	url, err := s.service.AttachmentDownloadURL(c.Request().Context(), currentSession(c), c.Param("attachmentId"))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]string{"url": url})
}

func (s *HTTPServer) deleteAttachment(c echo.Context) error {
	if err := s.service.DeleteAttachment(c.Request().Context(), currentSession(c), c.Param("attachmentId")); err != nil {
		return fail(c, err)
	}
	return respond(c, http.StatusOK, map[string]any{"ok": true})
}
