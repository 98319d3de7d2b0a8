package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/dkeye/voicerelay/internal/client"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
)

var (
	serverFlag = &cli.StringFlag{
		Name:    "server",
		Usage:   "base URL of the voice server",
		Value:   "http://localhost:8080",
		EnvVars: []string{"VOICEBOT_SERVER"},
	}
	roomFlag = &cli.StringFlag{
		Name:  "room",
		Usage: "voice room to join",
		Value: "lounge",
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "display name",
		Value: "voicebot",
	}
	iceFlag = &cli.StringSliceFlag{
		Name:  "ice",
		Usage: "ICE server URL, repeatable",
	}
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.App{
		Name:  "voicebot",
		Usage: "headless participant for the voice relay",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name: "verbose",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.InfoLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "join",
				Usage:  "join a voice room and hold peer sessions with its members",
				Flags:  []cli.Flag{serverFlag, roomFlag, nameFlag, iceFlag},
				Action: joinRoom,
			},
			{
				Name:   "rooms",
				Usage:  "list rooms and their member counts",
				Flags:  []cli.Flag{serverFlag},
				Action: listRooms,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func joinRoom(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	wsURL, err := signalURL(c.String(serverFlag.Name))
	if err != nil {
		return err
	}

	ice := c.StringSlice(iceFlag.Name)
	if len(ice) == 0 {
		if ice, err = fetchICE(ctx, c.String(serverFlag.Name)); err != nil {
			log.Warn().Err(err).Msg("ice servers from server, using defaults")
		}
	}

	factory, err := client.NewRTCPeerFactory(ice, func(remote core.ConnectionID, level float64, speaking bool) {
		log.Info().Str("remote", string(remote)).Float64("level", level).Bool("speaking", speaking).Msg("media activity")
	})
	if err != nil {
		return err
	}

	vc, err := client.Dial(ctx, wsURL, nil, factory, client.Handlers{
		OnRoster: func(p protocol.VoiceRoomUsers) {
			names := make([]string, 0, len(p.Users))
			for _, u := range p.Users {
				names = append(names, u.Username)
			}
			log.Info().Str("room", p.Room).Strs("users", names).Msg("roster")
		},
		OnPeerJoined: func(id core.ConnectionID) {
			log.Info().Str("remote", string(id)).Msg("peer joined")
		},
		OnSpeaking: func(p protocol.SpeakingUpdate) {
			log.Debug().Str("user", p.Username).Bool("speaking", p.IsSpeaking).Float64("level", p.VoiceLevel).Msg("speaking")
		},
		OnVoiceStatus: func(p protocol.VoiceStatusUpdate) {
			log.Info().Str("user", p.Username).Bool("muted", p.IsMuted).Bool("volume_muted", p.IsVolumeMuted).Msg("voice status")
		},
		OnError: func(p protocol.Error) {
			log.Error().Str("code", p.Error).Str("message", p.Message).Msg("server rejected request")
		},
	})
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- vc.Run(ctx) }()

	select {
	case <-vc.Ready():
	case err := <-errc:
		return err
	case <-time.After(10 * time.Second):
		vc.Close()
		return fmt.Errorf("no connected event from %s", wsURL)
	}

	if err := vc.Join(c.String(roomFlag.Name), protocol.UserInfo{Username: c.String(nameFlag.Name)}); err != nil {
		vc.Close()
		return err
	}
	if err := vc.SetVoiceStatus(true, false); err != nil {
		log.Warn().Err(err).Msg("announce muted")
	}

	select {
	case <-ctx.Done():
		_ = vc.Leave()
		// Let the leave frame reach the socket before closing it.
		time.Sleep(200 * time.Millisecond)
		vc.Close()
		return <-errc
	case err := <-errc:
		return err
	}
}

func listRooms(c *cli.Context) error {
	var body struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	if err := getJSON(c.Context, c.String(serverFlag.Name)+"/api/rooms", &body); err != nil {
		return err
	}
	for _, r := range body.Rooms {
		fmt.Printf("%-16s %-6s %-20s %d\n", r.ID, r.Kind, r.Name, r.MemberCount)
	}
	return nil
}

func fetchICE(ctx context.Context, base string) ([]string, error) {
	var body struct {
		ICEServers []string `json:"iceServers"`
	}
	if err := getJSON(ctx, base+"/api/ice", &body); err != nil {
		return nil, err
	}
	return body.ICEServers, nil
}

func getJSON(ctx context.Context, endpoint string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", endpoint, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func signalURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/api/ws/signal"
	return u.String(), nil
}
