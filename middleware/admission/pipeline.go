package admission

import "net/http"

// Stage é uma etapa nomeada do pipeline. Invoke decide se e quando chamar next.
type Stage interface {
	Name() string
	Invoke(w http.ResponseWriter, r *http.Request, next http.Handler)
}

// StageFunc adapta uma função para Stage.
type StageFunc struct {
	StageName string
	Fn        func(w http.ResponseWriter, r *http.Request, next http.Handler)
}

func (s StageFunc) Name() string { return s.StageName }

func (s StageFunc) Invoke(w http.ResponseWriter, r *http.Request, next http.Handler) {
	s.Fn(w, r, next)
}

// Handler liga um stage ao próximo handler.
func Handler(s Stage, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Invoke(w, r, next)
	})
}

// AsMiddleware adapta um stage para o formato func(http.Handler) http.Handler (chi, net/http).
func AsMiddleware(s Stage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return Handler(s, next) }
}

// Pipeline compõe stages em ordem: o primeiro é o mais externo.
type Pipeline struct {
	stages []Stage
}

func NewPipeline(stages ...Stage) *Pipeline {
	p := &Pipeline{}
	return p.Use(stages...)
}

// Use adiciona stages ao final (mais perto do handler). Stages nil são ignorados.
func (p *Pipeline) Use(stages ...Stage) *Pipeline {
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

func (p *Pipeline) Names() []string {
	out := make([]string, len(p.stages))
	for i, s := range p.stages {
		out[i] = s.Name()
	}
	return out
}

// Then monta o handler final.
func (p *Pipeline) Then(h http.Handler) http.Handler {
	for i := len(p.stages) - 1; i >= 0; i-- {
		h = Handler(p.stages[i], h)
	}
	return h
}

// Middlewares devolve os stages como middlewares, na mesma ordem (para r.Use do chi).
func (p *Pipeline) Middlewares() []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, len(p.stages))
	for i, s := range p.stages {
		out[i] = AsMiddleware(s)
	}
	return out
}
