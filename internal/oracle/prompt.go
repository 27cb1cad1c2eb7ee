package oracle

const classifyPrompt = `Analyze this video frame from a programming tutorial.

Your task:
1. Determine if this frame shows CODE being written/displayed or if it's a LEARNING/EXPLANATION phase
2. If code is visible, extract it EXACTLY as shown (preserve indentation, syntax)
3. If it's an explanation/learning phase, note what concept is being taught

Response format (JSON only, no markdown):
{
    "segment_type": "code|learning",
    "has_code": true/false,
    "code_content": "extracted code or null",
    "learning_topic": "topic being explained or null",
    "confidence": 0.0-1.0,
    "language": "detected programming language",
    "code_complete": true/false
}

Rules:
- Use "code" only when actual code is visible in an IDE/editor
- Use "learning" for slides, diagrams, explanations, or instructor speaking
- Extract code EXACTLY - preserve all spacing, indentation, comments
- Set code_complete to true only if it's a runnable snippet
- Be conservative: if unsure, classify as "learning"`

const conceptPrompt = `You are given the transcript and code snippets of a programming tutorial,
annotated with timestamps in seconds. Identify the programming concepts the
tutorial covers.

Response format (JSON only, no markdown):
{
    "concepts": [
        {
            "name": "concept name",
            "category": "one of: syntax, data-structures, control-flow, functions, oop, io, libraries, tooling, other",
            "timestamps": [seconds where the concept appears],
            "confidence": 0.0-1.0,
            "description": "one sentence"
        }
    ]
}

Rules:
- Only report concepts actually present in the material
- Use timestamps from the annotations, never invent them
- Return {"concepts": []} if nothing qualifies`
