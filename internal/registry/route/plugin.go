package route

import (
	"context"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/memoryweaver/memory-weaver/internal/config"
	"github.com/memoryweaver/memory-weaver/internal/model"
	registrymedia "github.com/memoryweaver/memory-weaver/internal/registry/media"
	registrystore "github.com/memoryweaver/memory-weaver/internal/registry/store"
	"github.com/memoryweaver/memory-weaver/internal/story"
)

// StoryGenerator runs the story pipeline for one request.
type StoryGenerator interface {
	Generate(ctx context.Context, req story.Request) (*model.Story, error)
}

// Services are the process-wide handles shared by every route plugin.
// They are read-only after startup.
type Services struct {
	Config  *config.Config
	Store   registrystore.MemoryStore
	Media   registrymedia.MediaStore
	Stories StoryGenerator
}

// RouterLoader initializes routes on the gin engine.
type RouterLoader func(r *gin.Engine, svc *Services) error

// Plugin represents a route plugin with an order for deterministic mount sequence.
type Plugin struct {
	Name   string
	Order  int
	Loader RouterLoader
}

var (
	plugins  []Plugin
	sortOnce sync.Once
)

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func sorted() []Plugin {
	sortOnce.Do(func() {
		sort.SliceStable(plugins, func(i, j int) bool { return plugins[i].Order < plugins[j].Order })
	})
	return plugins
}

// MountAll runs every registered loader against r, in order.
func MountAll(r *gin.Engine, svc *Services) error {
	for _, p := range sorted() {
		if err := p.Loader(r, svc); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the registered route plugin names in mount order.
func Names() []string {
	ps := sorted()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}
