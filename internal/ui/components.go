package ui

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
)

// Upload is a single upload prepared for display.
type Upload struct {
	ID       string
	Name     string
	URL      string
	Size     int64
	Length   string
	Complete bool
	Created  string
}

// pageWriter remembers the first write error so that markup can be emitted
// without checking every call.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) raw(parts ...string) {
	for _, s := range parts {
		if p.err != nil {
			return
		}
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *pageWriter) text(s string) {
	p.raw(html.EscapeString(s))
}

func (p *pageWriter) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		p.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		p.raw("<title>")
		p.text(title)
		p.raw("</title>")
		p.raw(`<link rel="stylesheet" href="https://unpkg.com/@picocss/pico@2/css/pico.min.css">`)
		p.raw(`<script src="https://cdn.jsdelivr.net/npm/tus-js-client@4/dist/tus.min.js"></script>`)
		p.raw(`</head><body><main class="container">`)
		if p.err != nil {
			return p.err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		p.raw("</main></body></html>")
		return p.err
	})
}

// uploadScript drives tus-js-client from the form on the home page. The
// endpoint is read from the form's data-endpoint attribute.
const uploadScript = `<script>
document.getElementById("upload-form").addEventListener("submit", function (ev) {
  ev.preventDefault();
  var form = ev.target;
  var file = form.querySelector("input[type=file]").files[0];
  if (!file) { return; }
  var progress = document.getElementById("upload-progress");
  var status = document.getElementById("upload-status");
  var upload = new tus.Upload(file, {
    endpoint: form.dataset.endpoint,
    chunkSize: parseInt(form.dataset.chunkSize, 10) || Infinity,
    retryDelays: [0, 1000, 3000, 5000],
    metadata: { filename: file.name, filetype: file.type },
    onError: function (err) { status.textContent = "Failed: " + err; },
    onProgress: function (sent, total) { progress.value = sent; progress.max = total; },
    onSuccess: function () {
      status.innerHTML = "";
      var link = document.createElement("a");
      link.href = upload.url;
      link.textContent = "Download " + file.name;
      status.appendChild(link);
    }
  });
  upload.findPreviousUploads().then(function (previous) {
    if (previous.length) { upload.resumeFromPreviousUpload(previous[0]); }
    upload.start();
  });
});
</script>`

// HomePage renders the upload form and the most recent uploads. chunkSize is
// passed to the browser client; zero sends each file in one request.
func HomePage(endpoint string, chunkSize int64, uploads []Upload) templ.Component {
	return Layout("Resumable uploads", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := &pageWriter{w: w}
		p.raw("<section><header><h1>Resumable uploads</h1>")
		p.raw("<p>Files are sent with the tus protocol and resume after interruptions.</p></header>")

		p.raw(`<form id="upload-form" data-endpoint="`)
		p.text(endpoint)
		p.printf(`" data-chunk-size="%d">`, chunkSize)
		p.raw(`<input type="file" name="file" required><button type="submit">Upload</button></form>`)
		p.raw(`<progress id="upload-progress" value="0" max="100"></progress><p id="upload-status"></p>`)
		p.raw("</section>")

		p.raw("<section><h2>Recent uploads</h2>")
		if len(uploads) == 0 {
			p.raw("<p>No uploads yet.</p></section>", uploadScript)
			return p.err
		}

		p.raw("<table><thead><tr><th>Name</th><th>Received</th><th>Length</th><th>Created</th></tr></thead><tbody>")
		for _, u := range uploads {
			p.raw("<tr><td>")
			if u.Complete {
				p.raw(`<a href="`)
				p.text(u.URL)
				p.raw(`">`)
				p.text(u.Name)
				p.raw("</a>")
			} else {
				p.text(u.Name)
			}
			p.printf("</td><td>%d</td><td>", u.Size)
			p.text(u.Length)
			p.raw("</td><td>")
			p.text(u.Created)
			p.raw("</td></tr>")
		}
		p.raw("</tbody></table></section>", uploadScript)
		return p.err
	}))
}
