// Package domain define contratos e tipos de domínio para admissão (rate limit por
// janela deslizante), limite de concorrência e observabilidade de requisições.
//
// Este pacote não depende de net/http nem de implementações concretas.
// Relógio, store de janelas e sinks de log são interfaces, o que permite testes
// determinísticos (relógio manual) e troca de infraestrutura sem tocar nas regras.
package domain
