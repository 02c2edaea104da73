package memories

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/memoryweaver/memory-weaver/internal/model"
	"github.com/memoryweaver/memory-weaver/internal/plugin/route/apierror"
	registryroute "github.com/memoryweaver/memory-weaver/internal/registry/route"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
)

func init() {
	registryroute.Register(registryroute.Plugin{
		Name:  "memories",
		Order: 10,
		Loader: func(r *gin.Engine, svc *registryroute.Services) error {
			MountRoutes(r, svc.Store)
			return nil
		},
	})
}

// createMemoryRequest is the POST /memories body.
type createMemoryRequest struct {
	UserID      string   `json:"user_id"`
	Date        string   `json:"date"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Mood        *string  `json:"mood"`
	Location    *string  `json:"location"`
}

// MountRoutes mounts the memory endpoints on the given router.
func MountRoutes(r *gin.Engine, store registrystore.MemoryStore) {
	create := func(c *gin.Context) { createMemory(c, store) }
	list := func(c *gin.Context) { listAll(c, store) }
	r.POST("/memories", create)
	r.POST("/memories/", create)
	r.GET("/memories", list)
	r.GET("/memories/", list)
	r.GET("/memories/:userId", func(c *gin.Context) { listUser(c, store) })
}

func createMemory(c *gin.Context, store registrystore.MemoryStore) {
	var req createMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierror.Bind(c, err)
		return
	}
	stored, err := store.AppendMemory(c.Request.Context(), model.Memory{
		UserID:      req.UserID,
		Date:        req.Date,
		Description: req.Description,
		Tags:        req.Tags,
		Mood:        req.Mood,
		Location:    req.Location,
	})
	if err != nil {
		apierror.Write(c, err)
		return
	}
	log.Info("Memory added", "user", stored.UserID, "date", stored.Date, "tags", len(stored.Tags))
	c.JSON(http.StatusCreated, gin.H{
		"message": "Memory added successfully",
		"memory":  stored,
	})
}

func listAll(c *gin.Context, store registrystore.MemoryStore) {
	docs, err := store.ListAll(c.Request.Context())
	if err != nil {
		apierror.Write(c, err)
		return
	}
	if docs == nil {
		docs = []model.UserMemories{}
	}
	c.JSON(http.StatusOK, gin.H{"memories": docs})
}

// listUser returns a user's memories in insertion order. Unknown users get an
// empty list. ?tag may repeat or be comma separated; matching is per memory.
func listUser(c *gin.Context, store registrystore.MemoryStore) {
	userID := c.Param("userId")
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		apierror.Write(c, err)
		return
	}
	tags := splitValues(c.QueryArray("tag"))

	var memories []model.Memory
	if len(tags) > 0 {
		memories, err = store.ListMemoriesByTag(c.Request.Context(), userID, tags)
		if err == nil {
			memories = model.FilterByTags(memories, tags)
			if limit > 0 && len(memories) > limit {
				memories = memories[:limit]
			}
		}
	} else {
		memories, err = store.ListMemories(c.Request.Context(), userID, limit)
	}
	if err != nil {
		apierror.Write(c, err)
		return
	}
	if memories == nil {
		memories = []model.Memory{}
	}
	c.JSON(http.StatusOK, gin.H{"memories": memories})
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &registrystore.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
	}
	return n, nil
}

// splitValues flattens repeated and comma separated query values.
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
