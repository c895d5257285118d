package internal

const Version = "0.3.0"

// RootLong 是根命令的详细说明
const RootLong = `corep - COREP own funds (C 01.00) reporting assistant

Retrieves the regulatory passages relevant to a question, asks an LLM to
populate the C 01.00 template for a bank scenario, and checks the result
against the template's consistency rules (V001-V006).

All amounts are in thousands of the scenario currency.`

// RootExample 列出常用命令
const RootExample = `  # Write a default config to ~/.corep/config/corep.yaml
  corep init

  # Embed the corpus once so semantic retrieval is available
  corep cache rebuild

  # Search the regulatory corpus
  corep retrieve "deduction of goodwill" -k 3
  corep retrieve "AOCI" --strategy fulltext --json

  # Populate C 01.00 for a scenario and validate it
  corep populate --scenario bank.yaml "What is our CET1 ratio position?"
  corep populate --presets data/scenarios.json --preset "Simple bank"

  # Re-validate fields saved from an earlier run
  corep validate --fields fields.json`
