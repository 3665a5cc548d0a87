package server

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

// handleDashboard serves a minimal live view of decision traffic,
// backed by the /ws stream.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <title>LendGuard - Decision Monitor</title>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 900px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .header h1 { margin: 0; font-size: 2em; text-align: center; }
        table { width: 100%; border-collapse: collapse; background: white; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #eee; }
        th { background-color: #f8f9fa; }
        .label-approve { color: #28a745; font-weight: bold; }
        .label-decline { color: #dc3545; font-weight: bold; }
        .label-review { color: #ffc107; font-weight: bold; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Loan Decision Monitor</h1></div>
        <table>
            <thead><tr><th>Time</th><th>Applicant</th><th>Probability</th><th>Decision</th><th>Confidence</th></tr></thead>
            <tbody id="decisions"></tbody>
        </table>
    </div>
    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        ws.onmessage = (msg) => {
            const e = JSON.parse(msg.data);
            const cls = e.label === 'APPROVE' ? 'label-approve' : (e.label === 'DECLINE' ? 'label-decline' : 'label-review');
            const row = document.createElement('tr');
            row.innerHTML = '<td>' + new Date(e.timestamp).toLocaleTimeString() + '</td>' +
                '<td>' + e.applicant_id + '</td>' +
                '<td>' + (e.probability * 100).toFixed(2) + '%</td>' +
                '<td class="' + cls + '">' + e.label + '</td>' +
                '<td>' + (e.confidence * 100).toFixed(2) + '%</td>';
            const body = document.getElementById('decisions');
            body.insertBefore(row, body.firstChild);
            while (body.rows.length > 50) body.deleteRow(-1);
        };
    </script>
</body>
</html>`

	t, err := template.New("dashboard").Parse(tmpl)
	if err != nil {
		log.Error().Err(err).Msg("Failed to parse dashboard template")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html")
	if err := t.Execute(w, nil); err != nil {
		log.Error().Err(err).Msg("Failed to render dashboard")
	}
}
