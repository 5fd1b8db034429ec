// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package openai talks to OpenAI-compatible servers through langchaingo.
//
// The provider holds three clients: a generator for anonymization and chunk
// extraction, a smaller classifier for leak checks and namespace prediction,
// and an embedder whose output length is checked against Config.Dimension.
// Each may point at a different host, so a local Ollama can serve the small
// models while a hosted API serves the generator.
//
//	cfg := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithGeneratorModel("qwen2.5:7b"),
//	    ai.WithDimension(768),
//	)
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	text, err := provider.Generator().Complete(ctx, system, transcript)
package openai
