package prompt

// DesignPromptTemplate is the prompt for the design phase.
// Format args: time budget, idea, project path, max features, max screens,
// storage rule, plan file name.
const DesignPromptTemplate = `Design a Flutter Web MVP for the following idea.
Goal: the smallest feature set that can be built in %s.

Idea: %s

Requirements:
1. Create a Flutter project at %s
2. Limit the core features to %d or fewer
3. Minimize dependencies on external APIs
4. A single screen, or at most %d screens
5. State: %s

Write the implementation plan to %s.`

// ImplementPromptTemplate is the prompt for the implement phase.
// Format args: plan path, mode-specific constraints.
const ImplementPromptTemplate = `Implement the MVP described in %s.

Constraints:
- Flutter Web target
- Material 3 design
- Responsive layout
- Include error handling
- Keep code concise with minimal comments
%s
When done, run flutter analyze and fix every reported error.`

// SpecAnalysisPromptTemplate is the prompt for the spec analysis phase.
// Format args: document, project path, spec path, time budget, plan path,
// max features, max screens, storage rule, plan file name.
const SpecAnalysisPromptTemplate = `Analyze the following specification and initialize a Flutter Web MVP project.

## Specification
%s

## Tasks
1. Create a Flutter project at %s
2. Save the specification verbatim to %s
3. Reduce the specification to what can be built in %s and write that plan to %s
   - Limit the core features to %d or fewer
   - Remove dependencies on external APIs
   - A single screen, or at most %d screens
   - State: %s
4. Move features that cannot be built now into a "Future work" section of %s

Keep the intent of the specification, but set a realistic MVP scope.`

// ImplementFromSpecPromptTemplate is the prompt for the implement phase of a
// specification-driven run.
// Format args: plan path, spec path, plan file name, spec file name,
// mode-specific constraints.
const ImplementFromSpecPromptTemplate = `Implement the MVP using %s and %s as reference.

## Priorities
1. Build the core features defined in %s first
2. Apply the design requirements from %s
3. Simplify wherever it does not hurt the user experience

## Constraints
- Flutter Web target
- Material 3 design
- Responsive layout (mobile and desktop)
- Include error handling
- Store local data with SharedPreferences
- Keep code concise with minimal comments
%s
## Verification
When done, confirm that:
1. flutter analyze passes
2. every core feature works
3. the project builds without errors`
