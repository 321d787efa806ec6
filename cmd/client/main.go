package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dkeye/Duet/internal/adapters/rtc"
	"github.com/dkeye/Duet/internal/client"
	"github.com/dkeye/Duet/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	fs := pflag.NewFlagSet("duet-client", pflag.ExitOnError)
	fs.String("server", "http://localhost:8080", "server base URL")
	fs.String("token", "", "bearer token for the signaling socket")
	fs.String("user", "", "own user id, used to mint a token when --jwt-secret is set")
	fs.String("name", "", "display name shown to the callee")
	fs.String("jwt-secret", "", "HS256 secret for minting a dev token")
	fs.String("call", "", "user id to call once connected")
	fs.Bool("auto-accept", false, "accept incoming calls")
	fs.Bool("audio", true, "send audio")
	fs.Bool("video", true, "send video")
	fs.String("video-file", "", "IVF (VP8) file to loop as the camera")
	fs.String("audio-file", "", "Ogg (Opus) file to loop as the microphone")
	fs.StringSlice("stun", rtc.DefaultICEServers, "ICE server URLs")
	fs.Duration("keepalive", 25*time.Second, "application ping period")
	fs.Duration("offer-media-wait", client.DefaultOfferMediaWait, "how long an offer waits for local media")
	fs.String("log-level", "info", "log level")
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	v.SetEnvPrefix("DUET_CLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		log.Fatal().Err(err).Msg("bind flags")
	}

	if lvl, err := zerolog.ParseLevel(v.GetString("log-level")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	self := domain.UserID(v.GetString("user"))
	token := v.GetString("token")
	if token == "" && v.GetString("jwt-secret") != "" {
		var err error
		if token, err = mintToken(self, v.GetString("jwt-secret")); err != nil {
			log.Fatal().Err(err).Msg("mint token")
		}
	}

	newPeer, err := rtc.Factory(rtc.Config{ICEServers: v.GetStringSlice("stun")})
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc setup")
	}

	ws, err := client.Dial(ctx, v.GetString("server"), token)
	if err != nil {
		log.Fatal().Err(err).Str("server", v.GetString("server")).Msg("dial")
	}

	var m *client.Machine
	autoAccept := v.GetBool("auto-accept")
	notify := client.NotifierFunc(func(n client.Notice) {
		l := log.Info()
		if n.Kind == client.NoticeError {
			l = log.Warn()
		}
		l.Str("from", string(n.From)).Msg(n.Text)
		if n.Kind == client.NoticeIncoming && autoAccept {
			go func() {
				if err := m.Accept(); err != nil {
					log.Error().Err(err).Msg("accept")
				}
			}()
		}
	})

	m = client.NewMachine(ctx, ws, client.FileDevices{
		VideoFile: v.GetString("video-file"),
		AudioFile: v.GetString("audio-file"),
	}, client.PeerFactory(newPeer), notify, client.Options{
		Self:           domain.CallerInfo{ID: self, DisplayName: v.GetString("name")},
		Constraints:    client.Constraints{Audio: v.GetBool("audio"), Video: v.GetBool("video")},
		OfferMediaWait: v.GetDuration("offer-media-wait"),
	})

	go func() {
		if err := ws.Run(ctx, v.GetDuration("keepalive"), m.Handle); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("signal connection lost")
		}
		cancel()
	}()

	if callee := v.GetString("call"); callee != "" {
		go func() {
			if err := m.Call(domain.UserID(callee)); err != nil {
				log.Error().Err(err).Str("callee", callee).Msg("call")
			}
		}()
	}

	<-ctx.Done()
	if err := m.End(); err != nil {
		log.Debug().Err(err).Msg("end on exit")
	}
	ws.Close()
	snap := m.Snapshot()
	log.Info().
		Uint64("rx_packets", m.Remote.Packets.Load()).
		Uint64("rx_bytes", m.Remote.Bytes.Load()).
		Str("status", string(snap.Status)).
		Msg("client exited")
}

func mintToken(uid domain.UserID, secret string) (string, error) {
	if !uid.Valid() {
		return "", domain.ErrInvalidIdentity
	}
	claims := jwt.MapClaims{
		"userId": string(uid),
		"exp":    time.Now().Add(24 * time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
