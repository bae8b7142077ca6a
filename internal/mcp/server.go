// Package mcp exposes the display daemon as Model Context Protocol tools so
// an assistant can inspect monitors, stage modes and drive the safety net.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/resctl/internal/ipc"
)

const (
	ServerName    = "resctl"
	ServerVersion = "0.1.0"
)

// Client is the daemon surface the tools use. *ipc.Client satisfies it.
type Client interface {
	GetStatus() (*ipc.StatusData, error)
	Refresh() (*ipc.StatusData, error)
	SetMode(p ipc.SetModePayload) (*ipc.SetModeData, error)
	SetOrientation(monitorID, orientation string) error
	Apply() (*ipc.ApplyData, error)
	Confirm() error
	Revert() (*ipc.RevertData, error)
	ListProfiles() (*ipc.ProfilesData, error)
	SaveProfile(name string) error
	LoadProfile(name string, apply bool) (*ipc.LoadProfileData, error)
	DeleteProfile(name string) error
}

// Server is the MCP server for display configuration.
type Server struct {
	mcpServer *mcpsdk.Server
	client    Client
	logger    *slog.Logger
}

// NewServer creates a new MCP server that forwards to the daemon via client.
func NewServer(client Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		client: client,
		logger: logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_monitors",
		Description: "List attached monitors with their current mode, staged mode, rotation and available modes, plus the confirmation countdown if a change is pending.",
	}, s.handleListMonitors)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_mode",
		Description: "Stage a resolution for a monitor. Nothing changes on screen until apply_staged is called.",
	}, s.handleSetMode)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_orientation",
		Description: "Stage a rotation for a monitor. Nothing changes on screen until apply_staged is called.",
	}, s.handleSetOrientation)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "apply_staged",
		Description: "Apply all staged settings. When anything changed, a countdown starts and the previous settings are restored unless confirm_settings is called in time. Ask the user whether the screen looks right before confirming.",
	}, s.handleApply)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "confirm_settings",
		Description: "Keep the settings applied by the last apply and stop the revert countdown.",
	}, s.handleConfirm)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "revert_settings",
		Description: "Restore the settings that were active before the last apply.",
	}, s.handleRevert)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_profiles",
		Description: "List saved display profiles.",
	}, s.handleListProfiles)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "save_profile",
		Description: "Save the staged settings of every attached monitor as a named profile, replacing any profile with the same name.",
	}, s.handleSaveProfile)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "switch_profile",
		Description: "Stage a saved profile and apply it. Monitors in the profile that are not attached are skipped.",
	}, s.handleSwitchProfile)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "delete_profile",
		Description: "Delete a saved profile.",
	}, s.handleDeleteProfile)
}
