package ui

import (
	"net/http"
)

const stylesheetPath = "/static/app.css"

const appStylesheet = `:root{--fg:#1f2328;--muted:#59636e;--border:#d1d9e0;--bg:#f6f8fa;--card:#fff;--accent:#0969da;--danger:#d1242f;--success:#1a7f37}
@media (prefers-color-scheme: dark){:root{--fg:#e6edf3;--muted:#9198a1;--border:#3d444d;--bg:#0d1117;--card:#151b23;--accent:#4493f8;--danger:#f85149;--success:#3fb950}}
*{box-sizing:border-box}
body{margin:0;font-family:Inter,system-ui,sans-serif;font-size:14px;color:var(--fg);background:var(--bg)}
a{color:var(--accent)}
.app-shell{display:flex;min-height:100vh}
.app-sidebar{width:220px;padding:16px;border-right:1px solid var(--border);background:var(--card)}
.app-nav{display:flex;flex-direction:column;gap:4px;margin-top:16px}
.app-nav-link{display:flex;align-items:center;gap:8px;padding:6px 8px;border-radius:6px;color:var(--fg);text-decoration:none}
.app-nav-link.active,.app-nav-link:hover{background:var(--bg)}
.nav-icon{width:16px;height:16px}
.app-main{flex:1;min-width:0}
.topbar{display:flex;justify-content:space-between;align-items:center;padding:12px 24px;border-bottom:1px solid var(--border)}
.page-title{font-size:20px;margin:0}
.content,.layout{padding:24px}
.card{background:var(--card);border:1px solid var(--border);border-radius:8px;padding:16px;margin-bottom:16px}
.flash-error{border-color:var(--danger);color:var(--danger)}
.color-fg-muted{color:var(--muted)}
.text-small{font-size:12px}
.d-flex{display:flex}.flex-items-center{align-items:center}.flex-wrap{flex-wrap:wrap}.gap-2{gap:8px}
.btn{padding:5px 12px;border:1px solid var(--border);border-radius:6px;background:var(--card);color:var(--fg);cursor:pointer}
.btn-primary{background:var(--accent);border-color:var(--accent);color:#fff}
.btn-sm{padding:3px 8px;font-size:12px}
.btn[disabled]{opacity:.6;cursor:progress}
.form-grid{display:grid;grid-template-columns:repeat(auto-fit,minmax(200px,1fr));gap:12px}
label{display:block;font-weight:600;margin-bottom:4px}
select,input,textarea{width:100%;padding:6px 8px;border:1px solid var(--border);border-radius:6px;background:var(--card);color:var(--fg);font:inherit}
textarea{min-height:90px;resize:vertical}
.button-row{display:flex;gap:8px;align-items:center;margin-top:12px}
.table-wrap{overflow-x:auto}
table{border-collapse:collapse;width:100%}
th,td{text-align:left;padding:6px 8px;border-bottom:1px solid var(--border);vertical-align:top}
pre{background:var(--bg);padding:8px;border-radius:6px;overflow-x:auto;white-space:pre-wrap}
.Label{display:inline-block;padding:0 7px;border:1px solid var(--border);border-radius:2em;font-size:12px;line-height:18px}
.Label--success{color:var(--success);border-color:var(--success)}
.Label--danger{color:var(--danger);border-color:var(--danger)}
.meta-row{display:flex;gap:16px;flex-wrap:wrap;margin-bottom:8px}
`

// Stylesheet serves the console stylesheet.
func (h *Handler) Stylesheet(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write([]byte(appStylesheet))
}
