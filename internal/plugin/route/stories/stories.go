package stories

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/memoryweaver/memory-weaver/internal/plugin/route/apierror"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registryroute "github.com/memoryweaver/memory-weaver/internal/registry/route"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/story"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "stories",
		Order: 20,
		Loader: func(r *gin.Engine, svc *registryroute.Services) error {
			MountRoutes(r, svc.Stories, svc.Media)
			return nil
		},
	})
}

// generateRequest is the POST /generate-story body.
type generateRequest struct {
	UserID      string   `json:"user_id"`
	Tone        string   `json:"tone"`
	IncludeTags []string `json:"include_tags"`
	MaxLength   int      `json:"max_length"`
}

// MountRoutes mounts story generation and audio download.
func MountRoutes(r *gin.Engine, stories registryroute.StoryGenerator, media registrymedia.MediaStore) {
	generate := func(c *gin.Context) { generateFromBody(c, stories) }
	r.POST("/generate-story", generate)
	r.POST("/generate-story/", generate)
	r.GET("/generate-story/:userId", func(c *gin.Context) { generateFromQuery(c, stories) })
	r.GET("/audio/:filename", func(c *gin.Context) { getAudio(c, media) })
}

func generateFromBody(c *gin.Context, stories registryroute.StoryGenerator) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Bind(c, err)
		return
	}
	run(c, stories, story.Request{
		UserID:      req.UserID,
		Tone:        req.Tone,
		IncludeTags: req.IncludeTags,
		MaxLength:   req.MaxLength,
	})
}

func generateFromQuery(c *gin.Context, stories registryroute.StoryGenerator) {
	req := story.Request{
		UserID:      c.Param("userId"),
		Tone:        c.Query("tone"),
		IncludeTags: splitValues(c.QueryArray("include_tags")),
	}
	if v := c.Query("max_length"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			apierror.Write(c, &registrystore.ValidationError{Field: "max_length", Message: "must be an integer"})
			return
		}
		req.MaxLength = n
	}
	run(c, stories, req)
}

func run(c *gin.Context, stories registryroute.StoryGenerator, req story.Request) {
	if stories == nil {
		apierror.Detail(c, http.StatusServiceUnavailable, "story generation is not configured")
		return
	}
	result, err := stories.Generate(c.Request.Context(), req)
	if err != nil {
		apierror.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func getAudio(c *gin.Context, media registrymedia.MediaStore) {
	name := c.Param("filename")
	if media == nil || !registrymedia.ValidName(name) {
		apierror.Detail(c, http.StatusNotFound, "Audio file not found")
		return
	}
	rc, err := media.Open(c.Request.Context(), name)
	if err != nil {
		var notFound *registrystore.NotFoundError
		if errors.As(err, &notFound) {
			apierror.Detail(c, http.StatusNotFound, "Audio file not found")
			return
		}
		apierror.Write(c, err)
		return
	}
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, "audio/mpeg", rc, nil)
}

func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
