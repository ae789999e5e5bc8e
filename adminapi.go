package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// AdminAPI exposes the host-facing control surface over HTTP for embedding
// hosts that prefer a REST admin plane over calling the SFU type
// in-process. Handlers are thin: they call straight into the registry and
// return its precise not-found results as HTTP 404.
type AdminAPI struct {
	sfu  *SFU
	echo *echo.Echo
}

// NewAdminAPI constructs an AdminAPI and registers its routes.
func NewAdminAPI(sfu *SFU) *AdminAPI {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[adminapi] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	a := &AdminAPI{sfu: sfu, echo: e}
	a.registerRoutes()
	return a
}

func (a *AdminAPI) registerRoutes() {
	a.echo.POST("/rooms", a.handleAddRoom)
	a.echo.DELETE("/rooms/:id", a.handleRemoveRoom)
	a.echo.POST("/rooms/:id/users", a.handleAdmitUser)
	a.echo.DELETE("/rooms/:id/users/:user_id", a.handleRemoveUser)
	a.echo.GET("/rooms/:id/users", a.handleGetRoomUsers)
}

// Run starts the HTTP server and blocks until ctx is canceled.
func (a *AdminAPI) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[adminapi] shutdown: %v", err)
		}
	}()

	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type addRoomRequest struct {
	RoomID uint32 `json:"room_id"`
}

func (a *AdminAPI) handleAddRoom(c echo.Context) error {
	var req addRoomRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	a.sfu.AddRoom(req.RoomID)
	return c.JSON(http.StatusOK, echo.Map{"room_id": req.RoomID})
}

func (a *AdminAPI) handleRemoveRoom(c echo.Context) error {
	roomID, err := parseUint32(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	a.sfu.RemoveRoom(roomID)
	return c.NoContent(http.StatusNoContent)
}

type admitUserRequest struct {
	UserID uint32 `json:"user_id"`
	Token  string `json:"token"`
}

func (a *AdminAPI) handleAdmitUser(c echo.Context) error {
	roomID, err := parseUint32(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	var req admitUserRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if !a.sfu.AdmitUser(roomID, req.UserID, req.Token) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no such room"})
	}
	return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "user_id": req.UserID})
}

func (a *AdminAPI) handleRemoveUser(c echo.Context) error {
	roomID, err := parseUint32(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	userID, err := parseUint32(c.Param("user_id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	a.sfu.RemoveUser(roomID, userID)
	return c.NoContent(http.StatusNoContent)
}

func (a *AdminAPI) handleGetRoomUsers(c echo.Context) error {
	roomID, err := parseUint32(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
	}
	users, ok := a.sfu.GetRoomUsers(roomID)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no such room"})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
