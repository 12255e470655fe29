package app

import (
	"fmt"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/retouch/retouch/configs"
	"github.com/retouch/retouch/internal/editsvc"
	"github.com/retouch/retouch/internal/server"
)

var (
	serveHost string
	servePort int
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveHost, "host", "H", "", "server host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "server port")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the image editing service",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveHost != "" {
		configs.Config.Server.Host = serveHost
	}
	if servePort != 0 {
		configs.Config.Server.Port = servePort
	}

	s := server.New(configs.Config.Server.Prefix)
	s.AddRoute("/", editsvc.Routes(s, editsvc.Options{
		MaxHistory: configs.Config.Server.MaxHistory,
		MaxUpload:  configs.Config.Server.MaxUpload,
	}))

	log.WithFields(log.Fields{
		"url":         fmt.Sprintf("http://%s%s", configs.ServerAddr(), s.BasePath),
		"max_history": configs.Config.Server.MaxHistory,
		"max_upload":  humanize.IBytes(uint64(configs.Config.Server.MaxUpload)),
	}).Info("starting server")

	return s.ListenAndServe(cmd.Context(), configs.ServerAddr())
}
