// Deskpad - remote touch input for the desktop
// A handheld device drives this machine's pointer and keyboard over the
// local network.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"deskpad/internal/api"
	"deskpad/internal/autostart"
	"deskpad/internal/config"
	"deskpad/internal/control"
	"deskpad/internal/dispatch"
	"deskpad/internal/input"
	"deskpad/internal/network"
	"deskpad/internal/osutils"
	"deskpad/internal/protocol"
)

var (
	version  = "0.1.0"
	showVer  = flag.Bool("version", false, "Show version")
	roleFlag = flag.String("role", "", "Override configured role: host or client")
	nameFlag = flag.String("name", "", "Override the advertised device name")
	dryRun   = flag.Bool("dry-run", false, "Host only: accept sessions but refuse all injection")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("deskpad version %s\n", version)
		return
	}

	// Initialize config
	cfgMgr, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}
	if err := cfgMgr.Load(); err != nil {
		log.Printf("Warning: failed to load config: %v", err)
	}
	if cfgMgr.EnsureDeviceID(uuid.NewString) {
		if err := cfgMgr.Save(); err != nil {
			log.Printf("Warning: failed to persist device ID: %v", err)
		}
	}

	cfg := cfgMgr.Get()
	if *roleFlag != "" {
		cfg.General.Role = *roleFlag
	}
	if *nameFlag != "" {
		cfg.Device.Name = *nameFlag
	}

	runService(cfgMgr)
}

func runService(cfgMgr *config.Manager) {
	cfg := cfgMgr.Get()
	log.Printf("Deskpad service starting (role: %s, device: %s)", cfg.General.Role, cfg.Device.Name)

	if err := autostart.Sync(cfg.General.StartOnBoot); err != nil {
		log.Printf("Warning: autostart sync: %v", err)
	}

	netCfg := network.Config{
		EventPort:     cfg.Network.EventPort,
		BeaconPort:    cfg.Network.BeaconPort,
		BroadcastAddr: cfg.Network.BroadcastAddr,
		Identity: protocol.Handshake{
			DeviceType: cfg.Device.Type,
			DeviceName: cfg.Device.Name,
			DeviceID:   cfg.Device.ID,
			AppName:    network.ServiceName,
		},
	}

	// Transport capability probe: the choice is made once for the whole
	// process lifetime.
	ranger := network.NewSocketRanger(cfg.Network.RangingSocket)
	var transport network.Transport = network.TransportNetwork
	if ranger.Available() {
		transport = network.TransportProximity
	}

	var (
		disp     *dispatch.Dispatcher
		injector *input.Injector
		granted  bool
	)
	switch cfg.General.Role {
	case "host":
		if runtime.GOOS == "windows" {
			go func() {
				if err := osutils.EnsureFirewallRule(cfg.Network.EventPort); err != nil {
					log.Printf("Firewall warning: %v", err)
				}
			}()
		}

		synth, scr, clip := input.NewPlatformSynthesizer()
		perm := hostPermission()
		granted = perm.Granted()
		if !granted {
			log.Printf("Warning: input injection refused: %s", perm.Reason())
		}
		injector = input.New(synth, scr, clip, perm)
		if !cfg.General.AutoAccept {
			netCfg.Decide = promptDecision
		}
	case "client":
		disp = dispatch.New()
	}

	disc := network.Choose(netCfg, ranger)
	ctrl := control.New(cfgMgr, disc, transport, disp, injector, granted)
	if err := ctrl.Start(); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	// Start API server if enabled
	var apiServer *api.Server
	if cfg.General.APIEnabled {
		apiServer = api.NewServer(cfgMgr, ctrl)
		go func() {
			if err := apiServer.Start(cfg.General.APIPort); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		apiServer.Shutdown(ctx)
		cancel()
	}
	ctrl.Stop()
	log.Println("Deskpad service stopped.")
}

// hostPermission reports whether synthetic input is allowed on this run.
func hostPermission() input.Permission {
	if *dryRun {
		return input.StaticPermission{Detail: "dry-run mode"}
	}
	return input.StaticPermission{Value: true}
}

// promptDecision is the interactive accept/decline hook used when
// auto-accept is off.
func promptDecision(hs protocol.Handshake, remote string) bool {
	fmt.Printf("Accept session from %q (%s)? [y/N] ", hs.DeviceName, remote)
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y"
}
