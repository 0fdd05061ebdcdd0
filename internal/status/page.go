package status

import "html/template"

var pageTmpl = template.Must(template.New("status").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>castbot status</title>
<style>
body{font-family:system-ui,sans-serif;max-width:40rem;margin:2rem auto;padding:0 1rem;color:#222}
.ok{color:#1a7f37}.bad{color:#cf222e}
table{border-collapse:collapse;width:100%}td,th{padding:.3rem .5rem;border-bottom:1px solid #ddd;text-align:left}
</style>
</head>
<body>
<h1>castbot</h1>
{{if .Inbound}}<p class="ok">● Bot is running</p>{{else}}<p class="bad">● Inbound delivery is disabled{{with .InboundError}}: {{.}}{{end}}</p>{{end}}
<table>
<tr><th>Registered users</th><td>{{.Registered}}</td></tr>
<tr><th>Transport</th><td>{{.Transport}}</td></tr>
<tr><th>Current time</th><td>{{.Now.Format "2006-01-02 15:04:05 MST"}}</td></tr>
<tr><th>Uptime</th><td>{{.Uptime}}</td></tr>
<tr><th>Broadcasts in progress</th><td>{{.Broadcasting}}</td></tr>
{{with .LastBroadcast}}<tr><th>Last broadcast</th><td>{{.Kind}} at {{.FinishedAt.Format "2006-01-02 15:04:05"}}: {{.Sent}} sent, {{.Failed}} failed ({{.Blocked}} blocked)</td></tr>{{end}}
</table>
{{if not .AdminSet}}<p class="bad">ADMIN_ID is not configured.</p>{{end}}
</body>
</html>
`))
