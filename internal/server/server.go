package server

import (
	"errors"
	"log"
	"net"

	"ai-dashboard-client/internal/config"
	"ai-dashboard-client/internal/devserver"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// Server hosts the development gateway: the chat websocket and the
// history API.
type Server struct {
	app     *fiber.App
	cfg     config.DevConfig
	gateway *devserver.Gateway
}

func New(cfg config.DevConfig, gateway *devserver.Gateway) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, OPTIONS",
	}))

	// OpenTelemetry tracing middleware (traces all HTTP requests)
	app.Use(otelfiber.Middleware())

	gateway.RegisterRoutes(app)

	return &Server{
		app:     app,
		cfg:     cfg,
		gateway: gateway,
	}
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

func (s *Server) Run() error {
	go s.gateway.Hub().Run()
	log.Printf("✅ Dev gateway is running on ws://localhost:%s/ws", s.cfg.Port)
	return s.app.Listen(":" + s.cfg.Port)
}

// Serve runs on an existing listener. Tests use it with a loopback port.
func (s *Server) Serve(ln net.Listener) error {
	go s.gateway.Hub().Run()
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	s.gateway.Hub().Stop()
	return s.app.Shutdown()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"success": false, "message": err.Error()})
}
