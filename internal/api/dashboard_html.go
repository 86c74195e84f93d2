package api

// dashboardHTML is a single static page polling /stats and rendering the
// pool's connection-state breakdown. It intentionally has no build step and
// no external assets so the debug server never needs a CDN.
const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>mysqlgo pool</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;
  --primary:#58a6ff;--green:#3fb950;--red:#f85149;--yellow:#d29922;--radius:8px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
a{color:var(--primary);text-decoration:none}
.container{max-width:980px;margin:0 auto;padding:24px}
header{display:flex;align-items:center;gap:12px;margin-bottom:24px}
header h1{font-size:20px;font-weight:700}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border)}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}
.summary{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin-bottom:24px}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:16px}
.card-label{font-size:11px;text-transform:uppercase;letter-spacing:.5px;color:var(--text-muted);margin-bottom:4px}
.card-value{font-size:28px;font-weight:700}
.bar{height:10px;border-radius:5px;background:var(--border);overflow:hidden;display:flex;margin-top:8px}
.bar span{display:block;height:100%}
.seg-leased{background:var(--primary)}
.seg-idle{background:var(--green)}
.seg-busy{background:var(--yellow)}
table{width:100%;border-collapse:collapse;background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:hidden}
th,td{text-align:left;padding:10px 14px;border-bottom:1px solid var(--border);font-size:13px}
th{color:var(--text-muted);font-weight:600;text-transform:uppercase;font-size:11px;letter-spacing:.5px}
tr:last-child td{border-bottom:none}
footer{margin-top:16px;color:var(--text-muted);font-size:12px}
</style>
</head>
<body>
<div class="container">
  <header>
    <h1>mysqlgo</h1>
    <span class="badge" id="poolName">pool</span>
    <span class="badge badge-healthy" id="statusBadge" style="margin-left:auto">loading…</span>
  </header>

  <div class="summary">
    <div class="card"><div class="card-label">Idle</div><div class="card-value" id="vIdle">–</div></div>
    <div class="card"><div class="card-label">Leased</div><div class="card-value" id="vLeased">–</div></div>
    <div class="card"><div class="card-label">Total / Max</div><div class="card-value" id="vTotal">–</div></div>
    <div class="card"><div class="card-label">Waiting</div><div class="card-value" id="vWaiting">–</div></div>
  </div>

  <div class="bar" id="usageBar">
    <span class="seg-leased" id="segLeased"></span>
    <span class="seg-idle" id="segIdle"></span>
    <span class="seg-busy" id="segBusy"></span>
  </div>

  <div style="height:16px"></div>

  <table>
    <tbody>
      <tr><td>Connecting</td><td id="rConnecting">–</td></tr>
      <tr><td>Disconnecting</td><td id="rDisconnecting">–</td></tr>
      <tr><td>Dropping (draining unread result set)</td><td id="rDropping">–</td></tr>
      <tr><td>Rolling back (abandoned transaction)</td><td id="rRollback">–</td></tr>
      <tr><td>Pool min / max</td><td id="rBounds">–</td></tr>
      <tr><td>Closed</td><td id="rClosed">–</td></tr>
    </tbody>
  </table>

  <footer>Polling <code>/stats</code> every 2s. Prometheus series live at <a href="/metrics">/metrics</a>.</footer>
</div>

<script>
(function() {
  'use strict';
  var g = function(id) { return document.getElementById(id); };

  function render(data) {
    var s = data.stats;
    g('poolName').textContent = data.pool;
    g('vIdle').textContent = s.idle;
    g('vLeased').textContent = s.leased;
    g('vTotal').textContent = s.total + ' / ' + s.max;
    g('vWaiting').textContent = s.waiting;
    g('rConnecting').textContent = s.connecting;
    g('rDisconnecting').textContent = s.disconnecting;
    g('rDropping').textContent = s.dropping;
    g('rRollback').textContent = s.rolling_back;
    g('rBounds').textContent = s.min + ' / ' + s.max;
    g('rClosed').textContent = s.closed ? 'yes' : 'no';

    var busy = s.connecting + s.disconnecting + s.dropping + s.rolling_back;
    var denom = Math.max(s.max, 1);
    g('segLeased').style.width = (100 * s.leased / denom) + '%';
    g('segIdle').style.width = (100 * s.idle / denom) + '%';
    g('segBusy').style.width = (100 * busy / denom) + '%';

    var badge = g('statusBadge');
    if (s.closed) {
      badge.textContent = 'closed';
      badge.className = 'badge badge-unhealthy';
    } else {
      badge.textContent = 'healthy';
      badge.className = 'badge badge-healthy';
    }
  }

  function poll() {
    fetch('/stats').then(function(r) { return r.json(); }).then(render).catch(function() {
      var badge = g('statusBadge');
      badge.textContent = 'unreachable';
      badge.className = 'badge badge-unhealthy';
    });
  }

  poll();
  setInterval(poll, 2000);
})();
</script>
</body>
</html>`
