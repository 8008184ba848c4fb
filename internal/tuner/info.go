package tuner

import (
	"html/template"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/snapetech/stalkertuner/internal/device"
)

var infoPage = template.Must(template.New("info").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Stalker Portal Info</title>
<style>
body { font-family: Arial, sans-serif; background: #0b0c10; color: #f2f2f2; margin: 0; }
.container { background: #1f2833; padding: 30px 40px; border-radius: 10px; max-width: 700px; margin: 40px auto; }
h1 { text-align: center; color: #66fcf1; }
table { width: 100%; border-collapse: collapse; margin-bottom: 20px; }
td { padding: 10px; border-bottom: 1px solid #45a29e; }
td.label { color: #66fcf1; font-weight: bold; width: 35%; }
td.value { color: #c5c6c7; word-break: break-all; }
a { color: #45a29e; font-weight: bold; text-decoration: none; }
.links { text-align: center; }
</style>
</head>
<body>
<div class="container">
<h1>Stalker Portal Info</h1>
<table>
<tr><td class="label">Portal URL:</td><td class="value">{{.Portal}}</td></tr>
<tr><td class="label">MAC Address:</td><td class="value">{{.Device.MAC}}</td></tr>
<tr><td class="label">SN Cut:</td><td class="value">{{.Device.SerialCut}}</td></tr>
<tr><td class="label">Signature:</td><td class="value">{{.Device.Signature}}</td></tr>
<tr><td class="label">Device ID:</td><td class="value">{{.Device.DeviceID}}</td></tr>
</table>
<div class="links">
<p><a href="{{.PlaylistURL}}" target="_blank">View Playlist (playlist.m3u)</a></p>
<p><a href="{{.GetLinkURL}}" target="_blank">Example GetLink (Channel 0)</a></p>
</div>
</div>
</body>
</html>
`))

func (s *Server) serveInfo(w http.ResponseWriter, r *http.Request) {
	base := s.baseURL(r)
	data := struct {
		Portal      string
		Device      device.Identity
		PlaylistURL string
		GetLinkURL  string
	}{
		Portal:      s.Portal.BaseURL,
		Device:      device.FromMAC(s.Portal.MAC),
		PlaylistURL: base + "/playlist.m3u",
		GetLinkURL:  base + "/getlink/0",
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := infoPage.Execute(w, data); err != nil {
		log.WithError(err).Warn("info page render")
	}
}
