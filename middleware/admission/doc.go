// Package admission fornece adapters HTTP (net/http) para admissão por janela
// deslizante, registro de latência e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny com fail-open, medição de latência)
//   - infra: implementações concretas (WindowStore com shards, relógios, sinks, stats)
//   - admission (este pacote): stages HTTP + extração de chave + tradução para status/headers
//
// Fluxo por requisição (AdmissionStage):
//
//  1. Extrai a chave do cliente (header/XFF/RemoteAddr)
//  2. Chama AdmissionService.Decide
//  3. Se bloqueado, responde 429 {"detail":"Too many requests"} sem chamar o downstream
//     e sem gerar RequestLogEntry (a rejeição só entra nas estatísticas de decisão)
//  4. Se permitido, o Recorder mede o downstream e emite exatamente um registro
//     (success, error ou cancelled) antes de a resposta sair do pipeline
//
// Stages são compostos explicitamente com Pipeline, do mais externo para o mais interno.
package admission
