package liveview

import "html/template"

// pageData parameterizes the one page this package serves. A live page
// connects a websocket; a static export carries the final tree inline.
type pageData struct {
	Static   bool
	TreeJSON template.JS
}

var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>trace</title>
<style>
body { font-family: monospace; margin: 1.5em; }
ul { list-style: none; padding-left: 1.2em; border-left: 1px solid #ccc; }
.name { font-weight: bold; }
.data { color: #555; }
</style>
</head>
<body>
<div id="tree">waiting for trace…</div>
<script>
function render(node) {
  var li = document.createElement("li");
  var name = document.createElement("span");
  name.className = "name";
  name.textContent = node.name;
  li.appendChild(name);
  var keys = node.data ? Object.keys(node.data) : [];
  if (keys.length) {
    var data = document.createElement("span");
    data.className = "data";
    data.textContent = " " + JSON.stringify(node.data);
    li.appendChild(data);
  }
  if (node.children && node.children.length) {
    var ul = document.createElement("ul");
    node.children.forEach(function (c) { ul.appendChild(render(c)); });
    li.appendChild(ul);
  }
  return li;
}
function show(tree) {
  var root = document.getElementById("tree");
  root.textContent = "";
  var ul = document.createElement("ul");
  ul.appendChild(render(tree));
  root.appendChild(ul);
}
{{if .Static}}
show({{.TreeJSON}});
{{else}}
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function (ev) { show(JSON.parse(ev.data)); };
ws.onclose = function () {
  document.title = "trace (disconnected)";
};
{{end}}
</script>
</body>
</html>
`))
