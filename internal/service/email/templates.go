package email

const dailyReportTemplate = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, 'Segoe UI', Roboto, sans-serif; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: #1d4ed8; color: white; padding: 20px; border-radius: 8px 8px 0 0; }
        .header h1 { margin: 0; font-size: 20px; }
        table { width: 100%; border-collapse: collapse; margin-top: 16px; }
        td { padding: 8px; border-bottom: 1px solid #e5e7eb; }
        td.value { text-align: right; font-weight: 600; }
        .breaker-open { color: #b91c1c; }
        .footer { color: #6b7280; font-size: 12px; margin-top: 24px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}: informe del {{.Day}}</h1>
    </div>
    <table>
        <tr><td>Interacciones</td><td class="value">{{.Stats.Total}}</td></tr>
        <tr><td>Sesiones</td><td class="value">{{.Stats.Sessions}}</td></tr>
        <tr><td>Preguntas</td><td class="value">{{.Stats.Questions}}</td></tr>
        <tr><td>Respondidas</td><td class="value">{{.Stats.Answered}}</td></tr>
        <tr><td>Fallos de Gemini</td><td class="value">{{.Stats.ProviderFailed}}</td></tr>
        <tr><td>Tasa de éxito</td><td class="value">{{printf "%.1f" .SuccessPercent}}%</td></tr>
        <tr><td>Latencia media</td><td class="value">{{.Stats.AverageLatency}}</td></tr>
    </table>
    {{if .Breakers}}
    <table>
        {{range .Breakers}}
        <tr><td>Circuito {{.Name}}</td><td class="value{{if eq .State "open"}} breaker-open{{end}}">{{.State}}</td></tr>
        {{end}}
    </table>
    {{end}}
    <p class="footer">El detalle de cada interacción va adjunto en CSV.</p>
</body>
</html>
`
