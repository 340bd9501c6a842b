package admission

import "net/http"

// statusWriter captura o status code; nunca lê nem altera o corpo.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.status = http.StatusOK
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Status segue a semântica do net/http: sem WriteHeader explícito, vale 200.
func (w *statusWriter) Status() int {
	if !w.wroteHeader {
		return http.StatusOK
	}
	return w.status
}

// Written informa se o handler escreveu status ou corpo.
func (w *statusWriter) Written() bool { return w.wroteHeader }

// Flush preserva streaming (SSE de chat) quando o writer de baixo suporta.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		if !w.wroteHeader {
			w.status = http.StatusOK
			w.wroteHeader = true
		}
		f.Flush()
	}
}

// Unwrap permite que http.ResponseController alcance o writer original.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
