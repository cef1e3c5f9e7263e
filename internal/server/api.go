package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/inkwell-io/inkwell/internal/config"
	"github.com/inkwell-io/inkwell/internal/logging"
	"github.com/inkwell-io/inkwell/internal/middleware"
	"github.com/inkwell-io/inkwell/internal/models"
	"github.com/inkwell-io/inkwell/internal/monitoring"
	"github.com/inkwell-io/inkwell/internal/posts"
	"github.com/inkwell-io/inkwell/internal/quota"
	"github.com/inkwell-io/inkwell/internal/token"
	"github.com/inkwell-io/inkwell/internal/users"
)

// APIServer represents the main API server
type APIServer struct {
	config       *config.Config
	router       *gin.Engine
	postsService *posts.Service
	usersService *users.Service
	authGate     *middleware.AuthGate
}

// NewAPIServer creates a new API server instance. The ledger decides
// quota; the server never touches usage counters itself.
func NewAPIServer(cfg *config.Config, db posts.PgxIface, ledger quota.Ledger) *APIServer {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware in order
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(monitoring.MetricsMiddleware())
	router.Use(logging.RequestLogger())

	validator := token.NewValidator(&cfg.JWT)

	srv := &APIServer{
		config:       cfg,
		router:       router,
		postsService: posts.NewService(db),
		usersService: users.NewService(db),
		authGate:     middleware.NewAuthGate(validator, ledger),
	}

	srv.setupRoutes()
	return srv
}

// Router returns the gin router
func (s *APIServer) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *APIServer) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/", s.handleIndex)

		// Post routes (guarded - every request charges the caller's quota)
		postGroup := v1.Group("/posts")
		postGroup.Use(s.authGate.Guard())
		{
			postGroup.GET("", s.handleListPosts)
			postGroup.GET("/:id", s.handleReadPost)
			postGroup.POST("/create", s.handleCreatePost)
			postGroup.PUT("/update/:id", s.handleUpdatePost)
			postGroup.DELETE("/delete/:id", s.handleDeletePost)
		}

		// User listing for the CLI (guarded)
		userGroup := v1.Group("/users")
		userGroup.Use(s.authGate.Guard())
		{
			userGroup.GET("", s.handleListUsers)
		}
	}
}

// healthCheck reports service health
func (s *APIServer) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "api",
	})
}

// handleIndex answers requests to the API root with a hint that no
// endpoint was selected.
func (s *APIServer) handleIndex(c *gin.Context) {
	c.JSON(http.StatusNonAuthoritativeInfo, gin.H{
		"status":  http.StatusNonAuthoritativeInfo,
		"message": "Not Authenticated",
	})
}

// postItem is the list/read representation of a post
type postItem struct {
	ID        int64  `json:"id"`
	UUID      string `json:"uuid"`
	UserID    int64  `json:"userId"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Link      string `json:"link"`
	CreatedAt string `json:"created_date"`
	UpdatedAt string `json:"updated_date"`
}

func toPostItem(p *models.Post) postItem {
	return postItem{
		ID:        p.ID,
		UUID:      p.UUID.String(),
		UserID:    p.UserID,
		Title:     p.Title,
		Body:      p.Body,
		Link:      fmt.Sprintf("/api/v1/posts/%d", p.ID),
		CreatedAt: p.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: p.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// handleListPosts returns a page of posts; limit and offset come from
// query parameters.
func (s *APIServer) handleListPosts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid limit parameter.")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid offset parameter.")
		return
	}

	items, err := s.postsService.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "Unable to list posts.")
		return
	}

	out := make([]postItem, 0, len(items))
	for i := range items {
		out = append(out, toPostItem(&items[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"items":  out,
	})
}

// handleReadPost returns a single post by id
func (s *APIServer) handleReadPost(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || postID <= 0 {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("Invalid post ID: %s.", c.Param("id")))
		return
	}

	item, err := s.postsService.Get(c.Request.Context(), postID)
	if err != nil {
		if err == posts.ErrPostNotFound {
			respondMessage(c, http.StatusNotFound, fmt.Sprintf("Post with ID: %d not found.", postID))
			return
		}
		respondMessage(c, http.StatusInternalServerError, "Unable to read post.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"item":   toPostItem(item),
	})
}

// handleCreatePost creates a new post from the JSON body
func (s *APIServer) handleCreatePost(c *gin.Context) {
	var req posts.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid post body.")
		return
	}

	item, err := s.postsService.Create(c.Request.Context(), &req)
	if err != nil {
		switch err {
		case posts.ErrInvalidTitle, posts.ErrInvalidBody, posts.ErrInvalidUser:
			respondMessage(c, http.StatusBadRequest, err.Error())
		default:
			respondMessage(c, http.StatusNotAcceptable, "Unable to create post.")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  http.StatusCreated,
		"message": "Post was successfully created.",
		"item":    toPostItem(item),
	})
}

// handleUpdatePost applies a partial update; the acting user comes
// from the client id header and scopes the update to posts they own.
func (s *APIServer) handleUpdatePost(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || postID <= 0 {
		respondMessage(c, http.StatusBadRequest, "Invalid post update parameters.")
		return
	}

	userID, ok := s.actingUserID(c)
	if !ok {
		respondMessage(c, http.StatusBadRequest, "Invalid post update parameters.")
		return
	}

	var req posts.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid post body.")
		return
	}
	if req.Title == nil && req.Body == nil {
		respondMessage(c, http.StatusOK, fmt.Sprintf("No updates made for post ID: %d.", postID))
		return
	}

	err = s.postsService.Update(c.Request.Context(), postID, userID, &req)
	if err != nil {
		switch err {
		case posts.ErrInvalidTitle, posts.ErrInvalidBody:
			respondMessage(c, http.StatusBadRequest, err.Error())
		case posts.ErrPostNotFound:
			respondMessage(c, http.StatusNotFound, fmt.Sprintf("Post with ID: %d not found.", postID))
		default:
			respondMessage(c, http.StatusNotAcceptable, fmt.Sprintf("Unable to update post ID: %d.", postID))
		}
		return
	}

	respondMessage(c, http.StatusOK, fmt.Sprintf("Post ID: %d successfully updated.", postID))
}

// handleDeletePost removes a post owned by the acting user
func (s *APIServer) handleDeletePost(c *gin.Context) {
	postID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || postID <= 0 {
		respondMessage(c, http.StatusBadRequest, fmt.Sprintf("Invalid post Id: %s.", c.Param("id")))
		return
	}

	userID, ok := s.actingUserID(c)
	if !ok {
		respondMessage(c, http.StatusBadRequest, "Invalid user Id.")
		return
	}

	err = s.postsService.Delete(c.Request.Context(), postID, userID)
	if err != nil {
		if err == posts.ErrPostNotFound {
			respondMessage(c, http.StatusNotFound, fmt.Sprintf("Post with ID: %d not found.", postID))
			return
		}
		respondMessage(c, http.StatusNotAcceptable, fmt.Sprintf("Unable to delete post ID: %d.", postID))
		return
	}

	respondMessage(c, http.StatusOK, fmt.Sprintf("Post ID: %d successfully deleted.", postID))
}

// handleListUsers returns a page of users with their usage counters
func (s *APIServer) handleListUsers(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid limit parameter.")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "Invalid offset parameter.")
		return
	}

	items, err := s.usersService.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondMessage(c, http.StatusInternalServerError, "Unable to list users.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": http.StatusOK,
		"items":  items,
	})
}

// actingUserID resolves the acting user from the client id header the
// gate already matched against the token subject.
func (s *APIServer) actingUserID(c *gin.Context) (int64, bool) {
	clientID := middleware.GetClientIDFromContext(c)
	if clientID == "" {
		clientID = c.GetHeader(middleware.HeaderClientID)
	}
	userID, err := strconv.ParseInt(clientID, 10, 64)
	if err != nil || userID <= 0 {
		return 0, false
	}
	return userID, true
}

// respondMessage sends the {status, message} envelope
func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
	})
}
