package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mherren/voxbot/internal/api/http/converter"
	"github.com/mherren/voxbot/internal/service"
)

// AdminController exposes a read-only view of the live world state for
// dashboards and debugging. All mutation goes through the bot commands.
type AdminController struct {
	store    *service.RoomStore
	registry *service.Registry
	log      *slog.Logger
}

func NewAdminController(store *service.RoomStore, registry *service.Registry, log *slog.Logger) *AdminController {
	if log == nil {
		log = slog.Default()
	}
	return &AdminController{store: store, registry: registry, log: log}
}

func (c *AdminController) ListRooms(ctx *gin.Context) {
	rooms := c.store.List(ctx.Query("guild_id"))

	response := make([]converter.RoomResponse, 0, len(rooms))
	for _, room := range rooms {
		response = append(response, converter.RoomToApi(room))
	}
	ctx.JSON(http.StatusOK, gin.H{"rooms": response})
}

func (c *AdminController) ListGenerators(ctx *gin.Context) {
	generators := c.registry.List(ctx.Query("guild_id"))

	response := make([]converter.GeneratorResponse, 0, len(generators))
	for _, gen := range generators {
		response = append(response, converter.GeneratorToApi(gen))
	}
	ctx.JSON(http.StatusOK, gin.H{"generators": response})
}
