package ai

// proposeToolParametersJSON is the JSON Schema handed to the model for the
// propose_budget_actions tool. It cannot express cross-field rules (pod ids
// must come from the pod list, from != to), those are checked after decoding.
const proposeToolParametersJSON = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["observed_transfer", "question_advice", "request_budget_change"]
    },
    "assistantText": { "type": "string", "minLength": 1 },
    "proposedActionDrafts": {
      "type": "array",
      "maxItems": 3,
      "items": {
        "oneOf": [
          {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "type": { "const": "budget_transfer", "description": "Draft discriminator; must match payload.kind." },
              "payload": {
                "type": "object",
                "additionalProperties": false,
                "properties": {
                  "kind": { "const": "budget_transfer", "description": "Payload discriminator; must match draft type." },
                  "amount_in_cents": { "type": "integer", "minimum": 1 },
                  "from_pod_id": { "type": "string", "minLength": 1 },
                  "from_pod_name": { "type": "string", "minLength": 1 },
                  "to_pod_id": { "type": "string", "minLength": 1 },
                  "to_pod_name": { "type": "string", "minLength": 1 }
                },
                "required": ["kind", "amount_in_cents", "from_pod_id", "from_pod_name", "to_pod_id", "to_pod_name"]
              }
            },
            "required": ["type", "payload"]
          },
          {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "type": { "const": "budget_adjust", "description": "Draft discriminator; must match payload.kind." },
              "payload": {
                "type": "object",
                "additionalProperties": false,
                "properties": {
                  "kind": { "const": "budget_adjust", "description": "Payload discriminator; must match draft type." },
                  "delta_in_cents": { "type": "integer" },
                  "pod_id": { "type": "string", "minLength": 1 },
                  "pod_name": { "type": "string", "minLength": 1 }
                },
                "required": ["kind", "delta_in_cents", "pod_id", "pod_name"]
              }
            },
            "required": ["type", "payload"]
          },
          {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "type": { "const": "budget_repair_restore_donor", "description": "Draft discriminator; must match payload.kind." },
              "payload": {
                "type": "object",
                "additionalProperties": false,
                "properties": {
                  "kind": { "const": "budget_repair_restore_donor", "description": "Payload discriminator; must match draft type." },
                  "amount_in_cents": { "type": "integer", "minimum": 1 },
                  "donor_pod_id": { "type": "string", "minLength": 1 },
                  "donor_pod_name": { "type": "string", "minLength": 1 },
                  "funding_pod_id": { "type": "string", "minLength": 1 },
                  "funding_pod_name": { "type": "string", "minLength": 1 },
                  "option_label": { "type": "string", "minLength": 1 }
                },
                "required": ["kind", "amount_in_cents", "donor_pod_id", "donor_pod_name", "funding_pod_id", "funding_pod_name"]
              }
            },
            "required": ["type", "payload"]
          }
        ]
      }
    },
    "entities": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "fromCandidate": { "anyOf": [{ "type": "string", "minLength": 1 }, { "type": "null" }] },
        "toCandidate": { "anyOf": [{ "type": "string", "minLength": 1 }, { "type": "null" }] },
        "fundingCandidate": { "anyOf": [{ "type": "string", "minLength": 1 }, { "type": "null" }] },
        "candidates": { "type": "array", "items": { "type": "string", "minLength": 1 } }
      },
      "required": ["candidates"]
    }
  },
  "required": ["intent", "assistantText", "proposedActionDrafts"]
}`
